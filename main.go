package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/die-net/hostproxy/internal/conn"
	"github.com/die-net/hostproxy/internal/dialer"
	"github.com/die-net/hostproxy/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen   = pflag.String("listen", "0.0.0.0:3128", "HTTP proxy listen address. A positional PORT argument replaces the port.")
		upstream = pflag.String("upstream", defaultUpstream(), "Upstream forwarding target URL: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")

		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
		connectTimeout     = pflag.Duration("connect-timeout", 30*time.Second, "Timeout for outbound DNS lookup and TCP connect, and for a plain HTTP origin to start responding")
		httpIdleTimeout    = pflag.Duration("http-idle-timeout", 4*time.Minute, "Timeout for idle upstream connections used by plain HTTP requests")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for reading a client request and for upstream proxy negotiation")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "on", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection debug logging")
		logFormat          = pflag.String("log-format", "text", "Log format: text|json")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [PORT]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger, err := newLogger(os.Stderr, *logFormat, *verbose)
	if err != nil {
		return fmt.Errorf("invalid --log-format: %w", err)
	}
	slog.SetDefault(logger)

	addr, err := listenAddress(*listen, pflag.Args())
	if err != nil {
		return err
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	profile := conn.DefaultProfile()
	profile.KeepAlive = ka

	dialCfg := dialer.Config{
		DialTimeout:        *connectTimeout,
		NegotiationTimeout: *negotiationTimeout,
		Profile:            profile,
		Logger:             logger,
	}

	d, err := dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cfg := proxy.Config{
		NegotiationTimeout:    *negotiationTimeout,
		HTTPIdleTimeout:       *httpIdleTimeout,
		ResponseHeaderTimeout: *connectTimeout,
		Dialer:                d,
		Logger:                logger,
		Metrics:               proxy.NewMetrics(reg),
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		http.DefaultServeMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", "addr", debugLn.Addr().String())
	}

	ln, err := conn.ListenTCP(ctx, "tcp", addr, profile, logger)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	srv := proxy.NewHTTPProxyServer(ctx, cfg)
	context.AfterFunc(ctx, func() {
		_ = srv.Close()
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("http proxy serve: %w", err)
		}
		return nil
	})
	logger.Info("http proxy listening", "addr", ln.Addr().String(), "upstream", redactUpstream(*upstream))

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

// newLogger builds the process logger. Text output is colored only when w is
// a terminal.
func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	switch strings.ToLower(format) {
	case "text":
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !term.IsTerminal(int(f.Fd()))
		}
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			NoColor:    noColor,
			TimeFormat: time.RFC3339,
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown format %q (expected text|json)", format)
	}
}

// listenAddress applies an optional positional PORT argument to listen.
func listenAddress(listen string, args []string) (string, error) {
	switch len(args) {
	case 0:
		return listen, nil
	case 1:
	default:
		return "", fmt.Errorf("expected at most one PORT argument, got %d", len(args))
	}

	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil || port == 0 {
		return "", fmt.Errorf("invalid PORT %q: must be 1-65535", args[0])
	}

	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid --listen %q: %w", listen, err)
	}
	return net.JoinHostPort(host, strconv.FormatUint(port, 10)), nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	if p := os.Getenv("UPSTREAM_PROXY"); p != "" {
		return p
	}
	return "direct://"
}

// redactUpstream hides upstream credentials before logging.
func redactUpstream(s string) string {
	i := strings.Index(s, "://")
	if i < 0 {
		return s
	}
	rest := s[i+3:]
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return s[:i+3] + "xxxxx@" + rest[at+1:]
	}
	return s
}
