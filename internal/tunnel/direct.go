package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/h2s5proxy/bridge/internal/wire"
)

// DirectFactory dials the destination directly with a plain TCP connection,
// bypassing SOCKS5 entirely. Permitted by spec.md §4.5 as a trivial
// tunnel-factory implementation for testing ProxySession/BytePump without a
// SOCKS5 server in the loop; grounded on the teacher's
// dialer.NewDirectDialer.
type DirectFactory struct {
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig
}

func (f *DirectFactory) Create(ctx context.Context, dst wire.Endpoint) (Channel, error) {
	d := net.Dialer{Timeout: f.DialTimeout}

	conn, err := d.DialContext(ctx, "tcp", Address(dst))
	if err != nil {
		return nil, fmt.Errorf("direct dial %s: %w", Address(dst), err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(f.KeepAlive)
	}

	return NewNetChannel(conn), nil
}

// Address renders an Endpoint as a host:port string suitable for net.Dial.
func Address(e wire.Endpoint) string {
	switch e.Kind {
	case wire.KindDNS:
		return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
	default:
		return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
	}
}
