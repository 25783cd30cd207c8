// Package socksclient implements the outbound SOCKS5 client half of the
// proxy: negotiation, optional RFC 1929 username/password authentication,
// and CONNECT, in both a sequential (write-flush-read per frame) and a
// pipelined ("fast") mode that writes all request frames before reading any
// response. It implements internal/tunnel.Factory.
package socksclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/h2s5proxy/bridge/internal/tunnel"
	"github.com/h2s5proxy/bridge/internal/wire"
)

// Mode selects how SocksClient sequences the three handshake frames.
type Mode int

const (
	// Pipelined writes negotiate, (optionally) auth, and connect back to
	// back and flushes once before reading any response. This is the
	// default: it saves two round-trips at the cost of blindly sending
	// authentication before learning whether the server required it.
	Pipelined Mode = iota
	// Sequential writes, flushes, and reads the response for each frame
	// before sending the next.
	Sequential
)

var (
	ErrOutboundConnectFailed       = errors.New("socks5: outbound connect failed")
	ErrNegotiateRejected           = errors.New("socks5: negotiate rejected")
	ErrAuthRequiredButNoCredential = errors.New("socks5: auth required but no credential configured")
	ErrAuthRejected                = errors.New("socks5: auth rejected")
	ErrConnectRejected             = errors.New("socks5: connect rejected")
	ErrInvalidDestination          = errors.New("socks5: invalid destination")
	ErrOutboundClosed              = errors.New("socks5: outbound closed")
)

// Client dials an upstream SOCKS5 server and performs the negotiate/auth/
// connect handshake described by spec.md §4.2. It implements
// tunnel.Factory.
type Client struct {
	UpstreamAddr string
	Credential   Credential
	Mode         Mode
	DialTimeout  time.Duration
	KeepAlive    net.KeepAliveConfig
}

// New constructs a Client. Mode defaults to Pipelined per spec.md §9.
func New(upstreamAddr string, cred Credential, mode Mode, dialTimeout time.Duration, ka net.KeepAliveConfig) *Client {
	return &Client{
		UpstreamAddr: upstreamAddr,
		Credential:   cred,
		Mode:         mode,
		DialTimeout:  dialTimeout,
		KeepAlive:    ka,
	}
}

// Create dials the upstream SOCKS5 server, performs the handshake for dst,
// and returns a Channel positioned immediately after the server's
// bound-address reply. ctx bounds both the dial and the handshake: if it
// ends mid-handshake, the upstream conn is closed and Create fails.
func (c *Client) Create(ctx context.Context, dst wire.Endpoint) (tunnel.Channel, error) {
	d := net.Dialer{Timeout: c.DialTimeout}

	conn, err := d.DialContext(ctx, "tcp", c.UpstreamAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutboundConnectFailed, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(c.KeepAlive)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	var handshakeErr error
	switch c.Mode {
	case Sequential:
		handshakeErr = c.handshakeSequential(conn, dst)
	default:
		handshakeErr = c.handshakePipelined(conn, dst)
	}
	if !stop() && handshakeErr == nil {
		handshakeErr = wrapOutboundClosed(ctx.Err())
	}
	if handshakeErr != nil {
		_ = conn.Close()
		return nil, handshakeErr
	}

	return tunnel.NewNetChannel(conn), nil
}

func (c *Client) handshakeSequential(conn net.Conn, dst wire.Endpoint) error {
	authOffered := c.Credential.Configured()

	if _, err := conn.Write(buildNegotiateFrame(authOffered)); err != nil {
		return wrapOutboundClosed(err)
	}

	method, err := readNegotiateReply(conn)
	if err != nil {
		return err
	}

	switch method {
	case txsocks5.MethodUsernamePassword:
		if !authOffered {
			return ErrAuthRequiredButNoCredential
		}
		if _, err := conn.Write(c.Credential.Packet()); err != nil {
			return wrapOutboundClosed(err)
		}
		if err := readAuthReply(conn); err != nil {
			return err
		}
	case txsocks5.MethodNone:
		// no auth required; proceed regardless of whether a credential
		// was configured.
	}

	frame, err := buildConnectFrame(dst)
	if err != nil {
		return err
	}
	if _, err := conn.Write(frame); err != nil {
		return wrapOutboundClosed(err)
	}

	return readConnectReply(conn)
}

func (c *Client) handshakePipelined(conn net.Conn, dst wire.Endpoint) error {
	authOffered := c.Credential.Configured()

	connectFrame, err := buildConnectFrame(dst)
	if err != nil {
		return err
	}

	out := buildNegotiateFrame(authOffered)
	if authOffered {
		out = append(out, c.Credential.Packet()...)
	}
	out = append(out, connectFrame...)

	if _, err := conn.Write(out); err != nil {
		return wrapOutboundClosed(err)
	}

	method, err := readNegotiateReply(conn)
	if err != nil {
		return err
	}
	if method == txsocks5.MethodUsernamePassword && !authOffered {
		return ErrAuthRequiredButNoCredential
	}

	// Per spec.md §4.2: the auth response is read iff an auth packet was
	// sent, independent of what the negotiate reply actually said.
	if authOffered {
		if err := readAuthReply(conn); err != nil {
			return err
		}
	}

	return readConnectReply(conn)
}

// readNegotiateReply reads and validates the negotiate response via
// txsocks5.NewNegotiationReplyFrom, returning the selected method (MethodNone
// or MethodUsernamePassword).
func readNegotiateReply(r io.Reader) (byte, error) {
	reply, err := txsocks5.NewNegotiationReplyFrom(r)
	if err != nil {
		return 0, wrapOutboundClosed(err)
	}
	switch reply.Method {
	case txsocks5.MethodNone, txsocks5.MethodUsernamePassword:
		return reply.Method, nil
	default:
		return 0, ErrNegotiateRejected
	}
}

// readAuthReply reads and validates the RFC 1929 auth response via
// txsocks5.NewUserPassNegotiationReplyFrom.
func readAuthReply(r io.Reader) error {
	reply, err := txsocks5.NewUserPassNegotiationReplyFrom(r)
	if err != nil {
		return wrapOutboundClosed(err)
	}
	if reply.Status != txsocks5.UserPassStatusSuccess {
		return ErrAuthRejected
	}
	return nil
}

// readConnectReply reads and validates the SOCKS5 connect response via
// txsocks5.NewReplyFrom, which reads the ATYP-dependent bound-address
// trailer itself rather than requiring the caller to know its length ahead
// of time.
func readConnectReply(r io.Reader) error {
	reply, err := txsocks5.NewReplyFrom(r)
	if err != nil {
		return wrapOutboundClosed(err)
	}
	if reply.Rep != txsocks5.RepSuccess {
		return ErrConnectRejected
	}
	return nil
}

func wrapOutboundClosed(err error) error {
	return fmt.Errorf("%w: %v", ErrOutboundClosed, err)
}
