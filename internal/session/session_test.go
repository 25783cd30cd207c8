package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/h2s5proxy/bridge/internal/config"
	"github.com/h2s5proxy/bridge/internal/tunnel"
)

func testConfig(t *testing.T, inboundUser, inboundPass string) config.Config {
	return testConfigWithTimeout(t, inboundUser, inboundPass, 2*time.Second)
}

func testConfigWithTimeout(t *testing.T, inboundUser, inboundPass string, negotiationTimeout time.Duration) config.Config {
	t.Helper()
	cfg, err := config.New("127.0.0.1:0", 128, "127.0.0.1:0", 0,
		inboundUser, inboundPass, "", "",
		time.Second, negotiationTimeout, 50*time.Millisecond, net.KeepAliveConfig{}, false)
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	return cfg
}

// startUpstreamEcho starts a plain TCP listener that echoes everything it
// receives back to the caller, standing in for whatever a DirectFactory
// dials.
func startUpstreamEcho(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(c, c)
	}()
	return ln
}

func TestHandleConnectEstablishesTunnelAndPumps(t *testing.T) {
	upstream := startUpstreamEcho(t)
	defer upstream.Close()

	cfg := testConfig(t, "", "")
	factory := &tunnel.DirectFactory{DialTimeout: time.Second}
	s := New(cfg, factory)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go s.Handle(context.Background(), serverConn)

	req := "CONNECT " + upstream.Addr().String() + " HTTP/1.1\r\nHost: x\r\n\r\n"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	r := bufio.NewReader(clientConn)
	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 200 Connection Established\n" {
		t.Fatalf("status = %q", status)
	}
	blank, _ := r.ReadString('\n')
	if blank != "\n" {
		t.Fatalf("blank line = %q", blank)
	}

	if _, err := clientConn.Write([]byte("ping")); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("echoed %q, want ping", buf)
	}
}

func TestHandleForwardSynthesizesOriginRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 4096)
		n, _ := c.Read(buf)
		received <- string(buf[:n])
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	}()

	cfg := testConfig(t, "", "")
	factory := &tunnel.DirectFactory{DialTimeout: time.Second}
	s := New(cfg, factory)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go s.Handle(context.Background(), serverConn)

	req := "GET http://" + ln.Addr().String() + "/index.html HTTP/1.1\r\n" +
		"Host: " + ln.Addr().String() + "\r\n" +
		"Proxy-Connection: Keep-Alive\r\n\r\n"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	select {
	case got := <-received:
		if got != "GET /index.html HTTP/1.1\nHost: "+ln.Addr().String()+"\n\n" {
			t.Fatalf("upstream received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received a request")
	}
}

func TestHandleRequiresInboundAuthWhenConfigured(t *testing.T) {
	cfg := testConfig(t, "alice", "wonderland")
	factory := &tunnel.DirectFactory{DialTimeout: time.Second}
	s := New(cfg, factory)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go s.Handle(context.Background(), serverConn)

	req := "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	r := bufio.NewReader(clientConn)
	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 407 Proxy Authentication Required\n" {
		t.Fatalf("status = %q", status)
	}
}

func TestHandleRejectsWrongInboundCredential(t *testing.T) {
	cfg := testConfig(t, "alice", "wonderland")
	factory := &tunnel.DirectFactory{DialTimeout: time.Second}
	s := New(cfg, factory)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go s.Handle(context.Background(), serverConn)

	req := "CONNECT example.com:443 HTTP/1.1\r\n" +
		"Proxy-Authorization: Basic d3Jvbmc6Y3JlZHM=\r\n\r\n" // "wrong:creds"
	if _, err := clientConn.Write([]byte(req)); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	r := bufio.NewReader(clientConn)
	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 403 Forbidden\n" {
		t.Fatalf("status = %q", status)
	}
}

func TestHandleMalformedRequestReturns400(t *testing.T) {
	cfg := testConfig(t, "", "")
	factory := &tunnel.DirectFactory{DialTimeout: time.Second}
	s := New(cfg, factory)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go s.Handle(context.Background(), serverConn)

	if _, err := clientConn.Write([]byte("garbage\r\n\r\n")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	r := bufio.NewReader(clientConn)
	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 400 Bad Request\n" {
		t.Fatalf("status = %q", status)
	}
}

func TestHandleNegotiationTimeoutClosesWithoutStatus(t *testing.T) {
	cfg := testConfigWithTimeout(t, "", "", 20*time.Millisecond)
	factory := &tunnel.DirectFactory{DialTimeout: time.Second}
	s := New(cfg, factory)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	handleDone := make(chan struct{})
	go func() {
		s.Handle(context.Background(), serverConn)
		close(handleDone)
	}()

	// Send a partial request line and never finish it: Parse blocks on Read
	// until the negotiation timeout closes the connection out from under it.
	if _, err := clientConn.Write([]byte("CONNECT example.com:443")); err != nil {
		t.Fatalf("write partial request: %v", err)
	}

	select {
	case <-handleDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not return after the negotiation timeout")
	}

	buf := make([]byte, 1)
	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := clientConn.Read(buf); err == nil {
		t.Fatal("Read after timeout: want error (no status line emitted), got data")
	}
}
