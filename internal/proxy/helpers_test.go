package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

type dialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// startProxy serves an HTTPProxyServer on 127.0.0.1. The returned stop func
// shuts it down and waits for Serve to return; it also runs at cleanup.
func startProxy(t *testing.T, cfg Config) (string, func()) {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.NegotiationTimeout == 0 {
		cfg.NegotiationTimeout = 2 * time.Second
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := NewHTTPProxyServer(context.Background(), cfg)
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ln)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = srv.Close()
			_ = ln.Close()
			if err := <-done; err != nil {
				t.Errorf("serve: %v", err)
			}
		})
	}
	t.Cleanup(stop)

	return ln.Addr().String(), stop
}

// sendRequest dials the proxy and writes raw as the request.
func sendRequest(t *testing.T, proxyAddr, raw string) (net.Conn, *bufio.Reader) {
	t.Helper()

	c, err := net.DialTimeout("tcp", proxyAddr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(c, raw); err != nil {
		t.Fatal(err)
	}
	return c, bufio.NewReader(c)
}

// connectThrough opens a tunnel to target and checks the exact 200 reply.
func connectThrough(t *testing.T, proxyAddr, target string) (net.Conn, *bufio.Reader) {
	t.Helper()

	c, br := sendRequest(t, proxyAddr, fmt.Sprintf("CONNECT %s HTTP/1.1\r\n\r\n", target))

	buf := make([]byte, len(connectEstablished))
	if _, err := io.ReadFull(br, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != connectEstablished {
		t.Fatalf("expected %q got %q", connectEstablished, string(buf))
	}
	return c, br
}

func readResponse(t *testing.T, br *bufio.Reader) (*http.Response, string) {
	t.Helper()

	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

// expectClosed asserts that the proxy closed the connection behind br.
func expectClosed(t *testing.T, br *bufio.Reader) {
	t.Helper()

	if _, err := br.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

// tcpPair returns two ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	a, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	b, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}
