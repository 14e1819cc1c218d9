// Package socks5 is the client half of a SOCKS5 CONNECT handshake, used to
// chain tunnels through an upstream SOCKS5 proxy.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 and
// turns the server's reply code into an error that the dialer package can
// classify (refused, timed out, or other).
package socks5
