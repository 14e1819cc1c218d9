//go:build unix

package conn

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// IsReuseAddrSupported is true where the listener sets SO_REUSEADDR.
const IsReuseAddrSupported = true

func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
