package proxy

import (
	"log/slog"
	"time"

	"github.com/die-net/hostproxy/internal/dialer"
)

type Config struct {
	// NegotiationTimeout bounds reading the client's request line and headers.
	NegotiationTimeout time.Duration

	// HTTPIdleTimeout is how long passthrough keeps idle upstream connections.
	HTTPIdleTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for a passthrough origin's
	// response headers. Zero means no limit.
	ResponseHeaderTimeout time.Duration

	// Dialer defaults to a direct dialer.
	Dialer dialer.Dialer

	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *Metrics
}
