// Package tunnel defines the duplex channel abstraction BytePump and
// SocksClient operate over, and the TunnelFactory boundary between the
// HTTP-side and SOCKS5-side state machines.
package tunnel

import (
	"bufio"
	"context"
	"net"

	"github.com/h2s5proxy/bridge/internal/wire"
)

// Channel is a duplex byte channel with independent read and write halves:
// asynchronous read, asynchronous write with an explicit flush, and a
// cancel signal per half. BytePump's half-close grace period (spec.md
// §4.4) needs to cancel exactly one half at a time, which a bare
// io.ReadWriteCloser cannot express.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error

	// CancelRead unblocks a pending or future Read with an error, without
	// affecting the write half.
	CancelRead() error
	// CancelWrite unblocks a pending or future Write/Flush with an error,
	// without affecting the read half.
	CancelWrite() error

	Close() error
}

// Factory produces a Channel connected to a destination Endpoint.
type Factory interface {
	Create(ctx context.Context, dst wire.Endpoint) (Channel, error)
}

type closeReader interface{ CloseRead() error }
type closeWriter interface{ CloseWrite() error }

// NetChannel adapts a net.Conn to Channel. Writes are buffered through a
// bufio.Writer so Flush has something to do, mirroring the
// bufio.ReadWriter+Flush idiom the teacher uses on hijacked connections.
// Cancellation prefers the half-close methods of the underlying conn
// (CloseRead/CloseWrite, available on *net.TCPConn) and falls back to a full
// Close on conns that don't support half-close.
type NetChannel struct {
	conn net.Conn
	w    *bufio.Writer
}

// NewNetChannel wraps conn as a Channel.
func NewNetChannel(conn net.Conn) *NetChannel {
	return &NetChannel{conn: conn, w: bufio.NewWriter(conn)}
}

func (c *NetChannel) Read(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *NetChannel) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *NetChannel) Flush() error                { return c.w.Flush() }
func (c *NetChannel) Close() error                { return c.conn.Close() }

func (c *NetChannel) CancelRead() error {
	if cr, ok := c.conn.(closeReader); ok {
		return cr.CloseRead()
	}
	return c.conn.Close()
}

func (c *NetChannel) CancelWrite() error {
	if cw, ok := c.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return c.conn.Close()
}
