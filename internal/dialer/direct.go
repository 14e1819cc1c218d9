package dialer

import (
	"context"
	"net"

	"github.com/die-net/hostproxy/internal/conn"
)

type directDialer struct {
	cfg Config
}

// NewDirectDialer returns the Dialer that connects straight to the
// destination. Connection attempts are bounded by cfg.DialTimeout, and
// successful connections are tuned with cfg.Profile.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.cfg.DialTimeout, KeepAliveConfig: d.cfg.Profile.KeepAlive}

	c, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, newConnectError(address, err)
	}

	if err := conn.Tune(c, d.cfg.Profile); err != nil {
		d.cfg.logger().Debug("socket tuning failed", "target", address, "error", err)
	}

	return c, nil
}
