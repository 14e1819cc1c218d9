package conn

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// ListenTCP listens on the given network/address with SO_REUSEADDR enabled
// (where the platform supports it) and returns a net.Listener that applies
// profile to accepted TCP connections.
func ListenTCP(ctx context.Context, network, addr string, profile Profile, logger *slog.Logger) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &TuningListener{Listener: ln, Profile: profile, Logger: logger}, nil
}

// TuningListener wraps a net.Listener and applies Profile to any accepted
// *net.TCPConn.
type TuningListener struct {
	net.Listener
	Profile Profile
	Logger  *slog.Logger
}

// Accept accepts the next connection and tunes it. Tuning failures are logged
// at debug level and do not fail the accept.
func (l *TuningListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if err := Tune(c, l.Profile); err != nil && l.Logger != nil {
		l.Logger.Debug("socket tuning failed", "client", c.RemoteAddr().String(), "error", err)
	}

	return c, nil
}
