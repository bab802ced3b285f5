package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksniff/internal/blocklist"
	"github.com/die-net/socksniff/internal/dialer"
	"github.com/die-net/socksniff/internal/logging"
	"github.com/die-net/socksniff/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socksListen = pflag.String("socks5-listen", ":6000", "SOCKS5 proxy listen address")
		debug       = pflag.Bool("debug", false, "Log the TLS ClientHello sent by each client")
		authReq     = pflag.Bool("auth-required", false, "Accepted for compatibility; no-auth is always selected")

		blockList  = pflag.String("block-list", "", "YAML block-list file with hosts: and ports: lists. Empty uses only the defaults.")
		blockHosts = pflag.StringSlice("block-host", nil, "Additional blocked target host (repeatable)")
		blockPorts = pflag.IntSlice("block-port", nil, "Additional blocked target port (repeatable)")
		dnsServer  = pflag.String("dns-server", "", "DNS server (host[:port]) for resolving domain targets. Empty uses the system resolver.")

		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 0, "Timeout for the SOCKS5 handshake. Zero disables.")
		sniffTimeout       = pflag.Duration("sniff-timeout", 2*time.Second, "How long to wait for a TLS ClientHello with --debug")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "30:10:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		reusePort          = pflag.Bool("reuse-port", false, "Set SO_REUSEPORT on the listening socket")
		logLevel           = pflag.String("log-level", "info", "Log level: debug|info|warn|error")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection error logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	log, err := logging.New(*logLevel, os.Stderr)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	ports, err := blocklist.ParsePorts(*blockPorts)
	if err != nil {
		return fmt.Errorf("invalid --block-port: %w", err)
	}
	var bl *blocklist.List
	if *blockList != "" {
		if bl, err = blocklist.Load(*blockList, *blockHosts, ports); err != nil {
			return fmt.Errorf("invalid --block-list: %w", err)
		}
	} else {
		bl = blocklist.New(*blockHosts, ports)
	}

	if *authReq {
		log.Warn("--auth-required is not enforced; clients are always offered no authentication")
	}

	cfg := proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		Sniff:              *debug,
		SniffTimeout:       *sniffTimeout,
		AuthRequired:       *authReq,
		KeepAlive:          ka,
		BlockList:          bl,
		Logger:             log,
		Verbose:            *verbose,
	}

	cfg.Dialer, err = dialer.New(dialer.Config{
		DialTimeout: *dialTimeout,
		KeepAlive:   ka,
		DNSServer:   *dnsServer,
	})
	if err != nil {
		return fmt.Errorf("invalid --dns-server: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
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
		log.Info("debug listening", zap.String("addr", *debugListen))
	}

	ln, err := proxy.ListenTCP("tcp", *socksListen, proxy.ListenConfig{KeepAlive: ka, ReusePort: *reusePort})
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, cfg)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})

	hosts, nports := bl.Len()
	log.Info("socks5 proxy listening",
		zap.Stringer("addr", ln.Addr()),
		zap.Bool("sniff", cfg.Sniff),
		zap.Int("blocked_hosts", hosts),
		zap.Int("blocked_ports", nports),
	)

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Info("shutting down", zap.Uint64("accepted", s5.Accepted()))
	return err
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
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
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
