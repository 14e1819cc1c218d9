package conn

import (
	"errors"
	"fmt"
	"net"
)

// Profile is the set of socket options applied to each side of a tunnel.
type Profile struct {
	NoDelay    bool
	KeepAlive  net.KeepAliveConfig
	SendBuffer int
	RecvBuffer int
}

// DefaultProfile returns the tuning used unless overridden on the command
// line: Nagle off, OS-default keepalive, and 64 KiB socket buffers.
func DefaultProfile() Profile {
	return Profile{
		NoDelay:    true,
		KeepAlive:  net.KeepAliveConfig{Enable: true},
		SendBuffer: 64 << 10,
		RecvBuffer: 64 << 10,
	}
}

// Tune applies p to c. Only *net.TCPConn is tuned; other connection types
// are returned untouched.
//
// Every option is attempted even if an earlier one fails, and the failures
// are joined into the returned error. None of them is fatal to a tunnel, so
// callers are expected to log the error and carry on.
func Tune(c net.Conn, p Profile) error {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}

	var errs []error
	if err := tc.SetNoDelay(p.NoDelay); err != nil {
		errs = append(errs, fmt.Errorf("nodelay: %w", err))
	}
	if err := tc.SetKeepAliveConfig(p.KeepAlive); err != nil {
		errs = append(errs, fmt.Errorf("keepalive: %w", err))
	}
	if p.SendBuffer > 0 {
		if err := tc.SetWriteBuffer(p.SendBuffer); err != nil {
			errs = append(errs, fmt.Errorf("send buffer: %w", err))
		}
	}
	if p.RecvBuffer > 0 {
		if err := tc.SetReadBuffer(p.RecvBuffer); err != nil {
			errs = append(errs, fmt.Errorf("recv buffer: %w", err))
		}
	}
	return errors.Join(errs...)
}
