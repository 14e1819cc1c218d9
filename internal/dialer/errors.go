package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Kind classifies why an outbound connection could not be established.
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
	KindRefused
	KindResolve
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRefused:
		return "refused"
	case KindResolve:
		return "resolve"
	default:
		return "error"
	}
}

// ConnectError is returned by every Dialer in this package when the
// destination could not be reached.
type ConnectError struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the connection attempt ran out of time.
func (e *ConnectError) Timeout() bool {
	return e.Kind == KindTimeout
}

// newConnectError wraps err for address. If err already carries a
// ConnectError (for example the dial to an upstream proxy failed), its Kind
// is kept.
func newConnectError(address string, err error) *ConnectError {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return &ConnectError{Kind: ce.Kind, Address: address, Err: err}
	}
	return &ConnectError{Kind: classify(err), Address: address, Err: err}
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindResolve
	}

	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}

	return KindOther
}
