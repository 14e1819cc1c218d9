package conn

import (
	"bufio"
	"net"
)

// BufferedConn is a net.Conn whose reads go through a bufio.Reader that has
// already consumed bytes from the connection, such as the reader an HTTP
// request or response was parsed from.
type BufferedConn struct {
	net.Conn
	r *bufio.Reader
}

// WithReader returns c unchanged if r holds no buffered bytes, and a
// *BufferedConn that drains r first otherwise.
func WithReader(c net.Conn, r *bufio.Reader) net.Conn {
	if r == nil || r.Buffered() == 0 {
		return c
	}
	return &BufferedConn{Conn: c, r: r}
}

func (c *BufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
