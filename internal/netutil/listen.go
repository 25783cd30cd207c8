// Package netutil provides the listener plumbing spec.md §1 treats as an
// external collaborator: binding the inbound socket and applying the
// per-connection keepalive policy, grounded on the teacher's
// proxy.ListenTCP/KeepAliveListener.
package netutil

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP listens on addr and returns a net.Listener whose accepted
// connections have keepAlive applied. An IPv6 addr (or an unspecified host)
// gets the usual net package dual-stack behavior on "tcp"; backlog is
// accepted for interface completeness with spec.md §6 but, as with the
// teacher's own listener, Go's net.ListenConfig has no portable knob for it
// — the OS default (SOMAXCONN) is used, and controlReuseAddr
// (sockopt_unix.go) is the one socket option actually under our control before listen(2).
func ListenTCP(addr string, backlog int, keepAlive net.KeepAliveConfig) (net.Listener, error) {
	_ = backlog

	lc := net.ListenConfig{Control: controlReuseAddr}

	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: keepAlive}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to
// every accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return conn, nil
}
