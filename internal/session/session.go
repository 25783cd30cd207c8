// Package session implements ProxySession: the per-connection state machine
// that drives one inbound HTTP proxy connection end to end — parse,
// authenticate, resolve destination, open a tunnel, reply, forward, and
// pump — per spec.md §4.3. Every error is local to the session (spec.md
// §7): nothing here ever propagates into the accept loop.
package session

import (
	"context"
	"log"
	"net"

	"github.com/h2s5proxy/bridge/internal/config"
	"github.com/h2s5proxy/bridge/internal/pump"
	"github.com/h2s5proxy/bridge/internal/tunnel"
	"github.com/h2s5proxy/bridge/internal/wire"
)

// Session drives a single accepted connection. It holds no state beyond a
// reference to the shared, read-only Config and the TunnelFactory used to
// open the outbound leg — everything else is local to Handle's stack.
type Session struct {
	cfg     config.Config
	factory tunnel.Factory
}

// New constructs a Session bound to cfg and factory. factory is normally a
// *socksclient.Client; tests may pass a tunnel.DirectFactory instead.
func New(cfg config.Config, factory tunnel.Factory) *Session {
	return &Session{cfg: cfg, factory: factory}
}

// Handle drives conn end to end and returns once the session has fully
// terminated (status emitted and closed, or pumped to completion). It never
// panics and never returns an error: all failures are handled locally by
// emitting the appropriate status line (or, for transfer-phase failures,
// silently) and closing the connection.
func (s *Session) Handle(ctx context.Context, conn net.Conn) {
	inbound := tunnel.NewNetChannel(conn)
	defer inbound.Close()

	// negCtx bounds header parsing and the SOCKS5 handshake; canceling it
	// closes conn to unblock the header parser's plain blocking Read, the
	// same context.AfterFunc-closes-the-socket idiom the teacher's main.go
	// uses to tear down listeners on shutdown. ctx itself (unbounded by
	// NegotiationTimeout) is reserved for the pump phase below;
	// endNegotiation disarms the close once the tunnel is open.
	negCtx := ctx
	endNegotiation := func() {}
	if s.cfg.NegotiationTimeout > 0 {
		var cancel context.CancelFunc
		negCtx, cancel = context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
		defer cancel()
		stop := context.AfterFunc(negCtx, func() { _ = conn.Close() })
		defer stop()
		endNegotiation = func() { stop() }
	}

	parsed, err := (wire.HeaderParser{}).Parse(inbound)
	if err != nil {
		s.logf("header parse: %v", err)
		s.maybeWriteStatus(negCtx, inbound, status400BadRequest)
		return
	}

	if s.cfg.HasInboundAuth {
		if !parsed.HasProxyAuthorization {
			s.maybeWriteStatus(negCtx, inbound, status407ProxyAuthRequired)
			return
		}
		if !checkInboundAuth(parsed.ProxyAuthorization, s.cfg.InboundToken) {
			s.maybeWriteStatus(negCtx, inbound, status403Forbidden)
			return
		}
	}

	if parsed.Method == "CONNECT" {
		s.handleConnect(ctx, negCtx, endNegotiation, inbound, parsed)
		return
	}
	s.handleForward(ctx, negCtx, endNegotiation, inbound, parsed)
}

func (s *Session) handleConnect(ctx, negCtx context.Context, endNegotiation func(), inbound tunnel.Channel, parsed *wire.ParsedRequest) {
	dst, err := connectDestination(parsed.URL)
	if err != nil {
		s.logf("connect destination: %v", err)
		s.maybeWriteStatus(negCtx, inbound, status400BadRequest)
		return
	}

	outbound, err := s.factory.Create(negCtx, dst)
	if err != nil {
		s.logf("tunnel create: %v", err)
		s.maybeWriteStatus(negCtx, inbound, status500ProxyFailure)
		return
	}
	defer outbound.Close()
	endNegotiation()

	if err := writeStatus(inbound, status200ConnectionEstablished); err != nil {
		return
	}

	if len(parsed.RemainingBytes) > 0 {
		if _, err := outbound.Write(parsed.RemainingBytes); err != nil {
			return
		}
		if err := outbound.Flush(); err != nil {
			return
		}
	}

	if err := pump.Run(ctx, inbound, outbound, s.cfg.GracePeriod); err != nil {
		s.logf("pump: %v", err)
	}
}

func (s *Session) handleForward(ctx, negCtx context.Context, endNegotiation func(), inbound tunnel.Channel, parsed *wire.ParsedRequest) {
	dst, pathAndQuery, err := absoluteFormDestination(parsed.URL)
	if err != nil {
		s.logf("absolute-form destination: %v", err)
		s.maybeWriteStatus(negCtx, inbound, status400BadRequest)
		return
	}

	outbound, err := s.factory.Create(negCtx, dst)
	if err != nil {
		s.logf("tunnel create: %v", err)
		s.maybeWriteStatus(negCtx, inbound, status500ProxyFailure)
		return
	}
	defer outbound.Close()
	endNegotiation()

	req := synthesizeOriginRequest(parsed.Method, pathAndQuery, parsed.Headers, parsed.RemainingBytes)
	if _, err := outbound.Write(req); err != nil {
		return
	}
	if err := outbound.Flush(); err != nil {
		return
	}

	if err := pump.Run(ctx, inbound, outbound, s.cfg.GracePeriod); err != nil {
		s.logf("pump: %v", err)
	}
}

// maybeWriteStatus emits status unless ctx is already canceled: per
// spec.md §5, cancellation during header parse or the SOCKS5 handshake
// unwinds the session without emitting a status line (the client may
// observe a reset instead).
func (s *Session) maybeWriteStatus(ctx context.Context, inbound tunnel.Channel, status string) {
	if ctx.Err() != nil {
		return
	}
	_ = writeStatus(inbound, status)
}

func (s *Session) logf(format string, args ...any) {
	if s.cfg.Verbose {
		log.Printf(format, args...)
	}
}
