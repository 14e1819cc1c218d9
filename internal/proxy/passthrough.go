package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/die-net/hostproxy/internal/dialer"
)

// Request headers that only apply to the client's hop.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Response headers that no longer describe the body once the transport has
// decoded it.
var strippedResponseHeaders = []string{
	"Connection",
	"Transfer-Encoding",
	"Content-Encoding",
}

// Passthrough forwards plain (non-CONNECT) HTTP requests to their origin.
type Passthrough struct {
	transport *http.Transport
}

// NewPassthrough returns a Passthrough whose transport dials via cfg.Dialer.
func NewPassthrough(cfg Config) *Passthrough {
	return &Passthrough{transport: newTransport(cfg)}
}

// Forward sends r to its origin and returns the response with connection
// framing headers removed. Redirects are returned, not followed. The caller
// must close the response body.
func (p *Passthrough) Forward(ctx context.Context, r *http.Request) (*http.Response, error) {
	out, err := outboundRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	for _, h := range strippedResponseHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}

// CloseIdleConnections closes pooled upstream connections.
func (p *Passthrough) CloseIdleConnections() {
	p.transport.CloseIdleConnections()
}

func outboundRequest(ctx context.Context, r *http.Request) (*http.Request, error) {
	out := r.Clone(ctx)
	out.RequestURI = ""
	out.Close = false

	// Allow scheme override through a non-standard header.
	if s, ok := out.Header["X-Proxy-Scheme"]; ok {
		delete(out.Header, "X-Proxy-Scheme")
		out.URL.Scheme = strings.ToLower(s[0])
	} else if out.URL.Scheme == "" {
		out.URL.Scheme = "http"
	}

	if out.URL.Host == "" {
		out.URL.Host = r.Host
	}
	if out.URL.Host == "" {
		return nil, errors.New("passthrough: request has no target host")
	}
	out.Host = out.URL.Host

	for _, f := range out.Header.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = textproto.TrimString(name); name != "" {
				out.Header.Del(name)
			}
		}
	}
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	// Let the transport negotiate compression so it can decode the body.
	out.Header.Del("Accept-Encoding")

	return out, nil
}

func newTransport(cfg Config) *http.Transport {
	t := &http.Transport{
		DialContext:           cfg.Dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          2048,
		MaxIdleConnsPerHost:   1024,
		IdleConnTimeout:       cfg.HTTPIdleTimeout,
		TLSHandshakeTimeout:   cfg.NegotiationTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		},
	}

	// Prefer the standard library proxy support when the configured dialer is
	// an HTTP proxy.
	if up, ok := cfg.Dialer.(*dialer.HTTPProxyDialer); ok {
		t.Proxy = http.ProxyURL(up.ProxyURL())
		// With Transport.Proxy set, DialContext connects to the proxy itself.
		t.DialContext = up.Direct().DialContext
	}

	return t
}
