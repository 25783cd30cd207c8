package netutil

import (
	"net"
	"testing"
)

func TestListenTCPAcceptsConnections(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0", 128, net.KeepAliveConfig{Enable: true})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		accepted <- err
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := <-accepted; err != nil {
		t.Fatalf("Accept: %v", err)
	}
}
