package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Stats counts bytes written to each side of a tunnel.
type Stats struct {
	ClientToServer uint64
	ServerToClient uint64
}

// Relay copies bytes between client and server until either direction
// finishes, then closes both connections. Half-close is not preserved: the
// first EOF or error from either side ends the whole tunnel.
//
// Relay owns client and server and closes each exactly once, including when
// ctx is canceled. Errors caused by that teardown, and plain EOF, are not
// reported.
func Relay(ctx context.Context, client, server net.Conn) (Stats, error) {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = client.Close()
			_ = server.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var stats Stats
	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		return relayErr("client to server", pump(server, client, &stats.ClientToServer))
	})
	g.Go(func() error {
		defer closeBoth()
		return relayErr("server to client", pump(client, server, &stats.ServerToClient))
	})
	err := g.Wait()

	return stats, err
}

// pump forwards reads from src verbatim to dst, adding bytes written to n.
func pump(dst io.Writer, src io.Reader, n *uint64) error {
	bp := relayBuffers.Get()
	defer relayBuffers.Put(bp)
	buf := *bp

	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				*n += uint64(nw)
			}
			if werr != nil {
				return werr
			}
			if nw != nr {
				return io.ErrShortWrite
			}
		}
		if rerr != nil {
			return rerr
		}
	}
}

func relayErr(direction string, err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return fmt.Errorf("relay %s: %w", direction, err)
}
