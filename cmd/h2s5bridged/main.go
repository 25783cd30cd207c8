// Command h2s5bridged accepts HTTP/1.1 proxy connections (CONNECT and
// absolute-form requests) and forwards each one through an outbound SOCKS5
// proxy. This is the external collaborator spec.md §1 leaves unspecified:
// flag parsing, listener binding, the accept loop, and credential plumbing.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/h2s5proxy/bridge/internal/config"
	"github.com/h2s5proxy/bridge/internal/netutil"
	"github.com/h2s5proxy/bridge/internal/session"
	"github.com/h2s5proxy/bridge/internal/socksclient"
	"github.com/h2s5proxy/bridge/internal/tunnel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenAddr   = pflag.String("listen", "127.0.0.1:8080", "HTTP proxy listen address")
		backlog      = pflag.Int("backlog", 128, "Listen backlog hint (best-effort; see internal/netutil)")
		upstream     = pflag.String("socks5-upstream", "127.0.0.1:1080", "Outbound SOCKS5 proxy address")
		socksUser    = pflag.String("socks5-user", "", "Outbound SOCKS5 username (optional)")
		socksPass    = pflag.String("socks5-pass", "", "Outbound SOCKS5 password (optional)")
		sequential   = pflag.Bool("socks5-sequential", false, "Use sequential (write-flush-read per frame) SOCKS5 handshake instead of the pipelined default")
		proxyUser    = pflag.String("proxy-user", "", "Inbound Proxy-Authorization username (optional)")
		proxyPass    = pflag.String("proxy-pass", "", "Inbound Proxy-Authorization password (optional)")
		dialTimeout  = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for the outbound SOCKS5 TCP connect")
		negTimeout   = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for header parsing and the SOCKS5 handshake")
		grace        = pflag.Duration("grace-period", 2*time.Second, "Half-close grace period before a stalled pump direction is forced closed")
		tcpKeepAlive = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose      = pflag.Bool("verbose", false, "Enable per-session error logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	mode := socksclient.Pipelined
	if *sequential {
		mode = socksclient.Sequential
	}

	cfg, err := config.New(
		*listenAddr, *backlog, *upstream, mode,
		*proxyUser, *proxyPass, *socksUser, *socksPass,
		*dialTimeout, *negTimeout, *grace, ka, *verbose,
	)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := netutil.ListenTCP(cfg.ListenAddr, cfg.Backlog, cfg.KeepAlive)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	context.AfterFunc(ctx, func() { _ = ln.Close() })

	factory := socksclient.New(cfg.SOCKSUpstreamAddr, cfg.SOCKSCredential, cfg.SOCKSMode, cfg.DialTimeout, cfg.KeepAlive)

	log.Printf("http proxy listening on %s, forwarding via socks5 %s", cfg.ListenAddr, cfg.SOCKSUpstreamAddr)

	err = acceptLoop(ctx, ln, cfg, factory)
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		err = nil
	}

	log.Print("shutting down")
	return err
}

// acceptLoop spawns one session per accepted connection as an independent
// goroutine (spec.md §5). Session failures stay inside Session.Handle and
// never reach this loop; an Accept error ends the loop and is returned,
// unless ctx has already been canceled, in which case it returns nil.
func acceptLoop(ctx context.Context, ln net.Listener, cfg config.Config, factory tunnel.Factory) error {
	var g errgroup.Group

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		g.Go(func() error {
			session.New(cfg, factory).Handle(ctx, conn)
			return nil
		})
	}
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
	idle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	intvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	cnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{Enable: true, Idle: idle, Interval: intvl, Count: cnt}, nil
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
