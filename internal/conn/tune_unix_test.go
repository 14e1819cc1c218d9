//go:build unix

package conn

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func getsockopt(t *testing.T, c syscall.Conn, level, opt int) int {
	t.Helper()

	rc, err := c.SyscallConn()
	require.NoError(t, err)

	var (
		v    int
		gerr error
	)
	require.NoError(t, rc.Control(func(fd uintptr) {
		v, gerr = unix.GetsockoptInt(int(fd), level, opt)
	}))
	require.NoError(t, gerr)
	return v
}

func TestTuneSetsSocketOptions(t *testing.T) {
	client, _ := dialPair(t)
	require.NoError(t, Tune(client, DefaultProfile()))

	sc := client.(syscall.Conn)
	require.NotZero(t, getsockopt(t, sc, unix.IPPROTO_TCP, unix.TCP_NODELAY))
	require.NotZero(t, getsockopt(t, sc, unix.SOL_SOCKET, unix.SO_KEEPALIVE))
	// Linux reports double the requested size to account for bookkeeping.
	require.GreaterOrEqual(t, getsockopt(t, sc, unix.SOL_SOCKET, unix.SO_SNDBUF), 65536)
	require.GreaterOrEqual(t, getsockopt(t, sc, unix.SOL_SOCKET, unix.SO_RCVBUF), 65536)
}

func TestListenTCPSetsReuseAddr(t *testing.T) {
	ln, err := ListenTCP(t.Context(), "tcp", "127.0.0.1:0", DefaultProfile(), nil)
	require.NoError(t, err)
	defer ln.Close()

	tl, ok := ln.(*TuningListener)
	require.True(t, ok)
	sc, ok := tl.Listener.(syscall.Conn)
	require.True(t, ok)
	require.NotZero(t, getsockopt(t, sc, unix.SOL_SOCKET, unix.SO_REUSEADDR))
}
