package proxy

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrMalformedTarget is matched by every error ParseTarget returns.
var ErrMalformedTarget = errors.New("malformed CONNECT target")

// TargetError describes why a CONNECT target was rejected.
type TargetError struct {
	Target string
	Reason string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrMalformedTarget, e.Target, e.Reason)
}

func (e *TargetError) Unwrap() error {
	return ErrMalformedTarget
}

// TunnelRequest is a validated CONNECT target.
type TunnelRequest struct {
	Host       string
	Port       uint16
	ClientAddr string
}

// Address returns the target in host:port form, bracketing IPv6 literals.
func (r TunnelRequest) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

// ParseTarget validates the authority of a CONNECT request line.
//
// The port is mandatory; there is no default.
func ParseTarget(target, clientAddr string) (TunnelRequest, error) {
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return TunnelRequest{}, &TargetError{Target: target, Reason: "expected host:port"}
	}
	if host == "" {
		return TunnelRequest{}, &TargetError{Target: target, Reason: "empty host"}
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return TunnelRequest{}, &TargetError{Target: target, Reason: "invalid port"}
	}
	if p == 0 {
		return TunnelRequest{}, &TargetError{Target: target, Reason: "port out of range"}
	}

	return TunnelRequest{Host: host, Port: uint16(p), ClientAddr: clientAddr}, nil
}
