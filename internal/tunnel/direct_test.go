package tunnel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/h2s5proxy/bridge/internal/wire"
)

func TestAddressRendersEachEndpointKind(t *testing.T) {
	cases := []struct {
		name string
		e    wire.Endpoint
		want string
	}{
		{"ipv4", wire.NewIPEndpoint(net.ParseIP("192.0.2.1"), 443), "192.0.2.1:443"},
		{"ipv6", wire.NewIPEndpoint(net.ParseIP("2001:db8::1"), 443), "[2001:db8::1]:443"},
		{"dns", wire.NewDNSEndpoint("example.com", 80), "example.com:80"},
	}
	for _, c := range cases {
		if got := Address(c.e); got != c.want {
			t.Errorf("%s: Address = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestDirectFactoryCreateConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
	}()

	addr := ln.Addr().(*net.TCPAddr)
	f := &DirectFactory{DialTimeout: time.Second}
	dst := wire.NewIPEndpoint(addr.IP, uint16(addr.Port))

	ch, err := f.Create(context.Background(), dst)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ch.Close()
}
