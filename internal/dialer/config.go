package dialer

import (
	"log/slog"
	"time"

	"github.com/die-net/hostproxy/internal/conn"
)

type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	Profile            conn.Profile
	Logger             *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
