package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/die-net/hostproxy/internal/conn"
	"github.com/die-net/hostproxy/internal/dialer"
)

const connectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// HTTPProxyServer serves an HTTP forward proxy.
//
// It supports:
// - HTTP CONNECT tunneling (dial the target, then Relay)
// - non-CONNECT proxying (via Passthrough), one exchange per connection
type HTTPProxyServer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cfg         Config
	logger      *slog.Logger
	passthrough *Passthrough
	wg          sync.WaitGroup
}

// NewHTTPProxyServer constructs an HTTP proxy server with the given config.
//
// Canceling ctx, or calling Close, aborts every tunnel and passthrough
// request in flight.
func NewHTTPProxyServer(ctx context.Context, cfg Config) *HTTPProxyServer {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = dialer.NewDirectDialer(dialer.Config{Logger: logger})
	}

	return &HTTPProxyServer{
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		logger:      logger,
		passthrough: NewPassthrough(cfg),
	}
}

// Serve accepts connections on ln and handles each on its own goroutine.
//
// Temporary accept failures, such as running out of file descriptors, are
// retried with backoff. It returns nil once ln is closed after shutdown
// began, and only after every connection handler has returned.
func (s *HTTPProxyServer) Serve(ln net.Listener) error {
	defer s.wg.Wait()

	var tempDelay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !isTemporaryAcceptError(err) {
				return fmt.Errorf("accept: %w", err)
			}

			if tempDelay == 0 {
				tempDelay = minAcceptDelay
			} else {
				tempDelay = min(2*tempDelay, maxAcceptDelay)
			}
			s.logger.Info("accept failed; retrying", "delay", tempDelay, "error", err)

			t := time.NewTimer(tempDelay)
			select {
			case <-t.C:
			case <-s.ctx.Done():
				t.Stop()
				return nil
			}
			continue
		}
		tempDelay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(c)
		}()
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// isTemporaryAcceptError reports whether Accept may succeed if retried.
func isTemporaryAcceptError(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ECONNABORTED, syscall.ENOBUFS, syscall.ENOMEM} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

// Close aborts in-flight requests and releases idle upstream connections.
// The listener passed to Serve must be closed by the caller.
func (s *HTTPProxyServer) Close() error {
	s.cancel()
	s.passthrough.CloseIdleConnections()
	return nil
}

func (s *HTTPProxyServer) handleConn(c net.Conn) {
	if s.cfg.NegotiationTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	br := bufio.NewReader(c)
	tp := textproto.NewReader(br)
	line, err := tp.ReadLine()
	if err != nil {
		s.badRequest(c, err)
		return
	}

	// CONNECT is parsed here so that every target, including ones net/url
	// rejects, goes through ParseTarget.
	if method, rest, _ := strings.Cut(line, " "); method == http.MethodConnect {
		target, proto, ok := strings.Cut(rest, " ")
		if _, _, okProto := http.ParseHTTPVersion(proto); !ok || !okProto {
			s.badRequest(c, fmt.Errorf("malformed CONNECT request line %q", line))
			return
		}
		if _, err := tp.ReadMIMEHeader(); err != nil {
			s.badRequest(c, err)
			return
		}
		_ = c.SetReadDeadline(time.Time{})
		s.handleConnect(c, br, target)
		return
	}

	req, err := http.ReadRequest(bufio.NewReader(io.MultiReader(strings.NewReader(line+"\r\n"), br)))
	if err != nil {
		s.badRequest(c, err)
		return
	}
	_ = c.SetReadDeadline(time.Time{})
	s.handlePassthrough(c, req)
}

// badRequest answers 400 and closes c. A client that hung up before sending
// anything gets no reply.
func (s *HTTPProxyServer) badRequest(c net.Conn, err error) {
	if !errors.Is(err, io.EOF) {
		s.logger.Debug(eventBadRequest, "client", c.RemoteAddr().String(), "outcome", OutcomeBadRequest, "error", err)
		_, _ = writeError(c, err, http.StatusBadRequest)
	}
	_ = c.Close()
}

func (s *HTTPProxyServer) handleConnect(c net.Conn, br *bufio.Reader, target string) {
	client := c.RemoteAddr().String()
	log := s.logger.With("method", http.MethodConnect, "target", target, "client", client)
	log.Debug(eventTunnelRequested)

	treq, err := ParseTarget(target, client)
	if err != nil {
		log.Info(eventTunnelFailed, "outcome", OutcomeMalformed, "error", err)
		s.cfg.Metrics.tunnelFailed(OutcomeMalformed)
		_, _ = writeError(c, err, http.StatusBadRequest)
		_ = c.Close()
		return
	}

	log.Debug(eventTunnelConnecting)
	start := time.Now()
	serverConn, err := s.cfg.Dialer.DialContext(s.ctx, "tcp", treq.Address())
	if err != nil {
		code, outcome := connectFailure(err)
		log.Info(eventTunnelFailed, "outcome", outcome, "status", code, "duration", time.Since(start), "error", err)
		s.cfg.Metrics.tunnelFailed(outcome)
		_, _ = writeError(c, err, code)
		_ = c.Close()
		return
	}

	if _, err := io.WriteString(c, connectEstablished); err != nil {
		log.Info(eventTunnelFailed, "outcome", OutcomeError, "error", err)
		s.cfg.Metrics.tunnelFailed(OutcomeError)
		_ = serverConn.Close()
		_ = c.Close()
		return
	}
	log.Debug(eventTunnelEstablished, "duration", time.Since(start))
	s.cfg.Metrics.tunnelOpened()

	start = time.Now()
	stats, err := Relay(s.ctx, conn.WithReader(c, br), serverConn)
	s.cfg.Metrics.tunnelClosed(stats)

	attrs := []any{
		"outcome", OutcomeClosed,
		"bytes_sent", stats.ClientToServer,
		"bytes_received", stats.ServerToClient,
		"duration", time.Since(start),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	log.Info(eventTunnelClosed, attrs...)
}

func (s *HTTPProxyServer) handlePassthrough(c net.Conn, req *http.Request) {
	defer c.Close()

	log := s.logger.With("method", req.Method, "target", req.URL.String(), "client", c.RemoteAddr().String())
	start := time.Now()

	resp, err := s.passthrough.Forward(s.ctx, req)
	if err != nil {
		log.Info(eventPassthroughFailed, "outcome", OutcomeFailed, "status", http.StatusInternalServerError, "error", err)
		s.cfg.Metrics.passthroughDone(OutcomeFailed)
		_, _ = writeError(c, err, http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	// HTTP/1.0 framing: the body runs until we close the connection, so
	// no Connection or Transfer-Encoding header needs to be added back.
	body := &countingBody{ReadCloser: resp.Body}
	resp.Body = body
	resp.Proto, resp.ProtoMajor, resp.ProtoMinor = "HTTP/1.0", 1, 0
	resp.TransferEncoding = nil
	resp.Close = false

	bw := bufio.NewWriterSize(c, ChunkSize)
	err = resp.Write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		log.Info(eventPassthroughFailed, "outcome", OutcomeFailed, "status", resp.StatusCode, "bytes_received", body.n, "error", err)
		s.cfg.Metrics.passthroughDone(OutcomeFailed)
		return
	}

	log.Info(eventPassthroughCompleted, "outcome", OutcomeCompleted, "status", resp.StatusCode, "bytes_received", body.n, "duration", time.Since(start))
	s.cfg.Metrics.passthroughDone(OutcomeCompleted)
}

// connectFailure maps a dial error to the status the client sees.
func connectFailure(err error) (int, Outcome) {
	var ce *dialer.ConnectError
	if errors.As(err, &ce) && ce.Kind == dialer.KindTimeout {
		return http.StatusGatewayTimeout, OutcomeTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, OutcomeTimeout
	}
	return http.StatusBadGateway, OutcomeError
}

// writeError simulates http.Error() on a raw client connection.
func writeError(w io.Writer, err error, code int) (int, error) {
	body := err.Error() + "\r\n"
	return fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, http.StatusText(code), len(body), body)
}

type countingBody struct {
	io.ReadCloser
	n int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}
