package wire

import (
	"net"
	"testing"
)

func TestParseLiteralOrDNS(t *testing.T) {
	cases := []struct {
		host string
		kind EndpointKind
	}{
		{"192.0.2.1", KindIPv4},
		{"2001:db8::1", KindIPv6},
		{"example.com", KindDNS},
	}
	for _, c := range cases {
		got := ParseLiteralOrDNS(c.host, 443)
		if got.Kind != c.kind {
			t.Errorf("ParseLiteralOrDNS(%q) kind = %v, want %v", c.host, got.Kind, c.kind)
		}
		if got.Port != 443 {
			t.Errorf("ParseLiteralOrDNS(%q) port = %d, want 443", c.host, got.Port)
		}
	}
}

func TestNewIPEndpointPreservesBytesLength(t *testing.T) {
	v4 := NewIPEndpoint(net.ParseIP("192.0.2.1"), 80)
	if len(v4.IP) != 4 {
		t.Fatalf("v4 IP length = %d, want 4", len(v4.IP))
	}
	v6 := NewIPEndpoint(net.ParseIP("2001:db8::1"), 80)
	if len(v6.IP) != 16 {
		t.Fatalf("v6 IP length = %d, want 16", len(v6.IP))
	}
}
