// Package conn holds the TCP plumbing shared by the listener and the outbound
// dialers: the socket tuning profile applied to both sides of a tunnel, and a
// listener that binds with SO_REUSEADDR and tunes every accepted connection.
package conn
