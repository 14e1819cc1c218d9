//go:build !unix

package conn

import "syscall"

// IsReuseAddrSupported is true where the listener sets SO_REUSEADDR.
//
// Windows gives SO_REUSEADDR port-stealing semantics, so it is left off there.
const IsReuseAddrSupported = false

func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
