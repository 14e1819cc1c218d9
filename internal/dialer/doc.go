// Package dialer opens the outbound side of a tunnel.
//
// The direct dialer is the tunnel Connector: it dials host:port with a
// bounded connect timeout, tunes the new socket, and classifies failures as
// a *ConnectError so callers can map them to a 502 or 504. Upstream dialers
// (HTTP CONNECT and SOCKS5) chain through another proxy and report their
// failures the same way.
package dialer
