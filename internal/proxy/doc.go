// Package proxy implements the listener side of hostproxy.
//
// HTTPProxyServer accepts client connections, reads the first request, and
// either opens a CONNECT tunnel (dial, "200 Connection Established", then
// Relay until either side closes) or hands the request to the plain-HTTP
// Passthrough. Every lifecycle transition is emitted as a structured slog
// event and counted in Metrics.
package proxy
