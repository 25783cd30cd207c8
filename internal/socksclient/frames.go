package socksclient

import (
	"bytes"
	"encoding/binary"
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/net/idna"

	"github.com/h2s5proxy/bridge/internal/wire"
)

// buildNegotiateFrame renders a SOCKS5 negotiation request offering exactly
// one method: username/password when a credential is configured, no-auth
// otherwise. It defers the wire encoding to txsocks5.NewNegotiationRequest,
// the same constructor the teacher's internal/socks5/client.go uses for this
// concern, rather than assembling the [0x05, 0x01, M] bytes by hand.
func buildNegotiateFrame(authOffered bool) []byte {
	method := byte(txsocks5.MethodNone)
	if authOffered {
		method = txsocks5.MethodUsernamePassword
	}

	var buf bytes.Buffer
	txsocks5.NewNegotiationRequest([]byte{method}).WriteTo(&buf)
	return buf.Bytes()
}

// buildConnectFrame renders the SOCKS5 CONNECT request for dst via
// txsocks5.NewRequest, punycoding Dns hosts and rejecting ones whose
// ASCII-compatible form exceeds 255 bytes. The returned bytes are ready to
// write to a conn directly (sequential mode) or to concatenate with the
// other two frames before a single write (pipelined mode).
func buildConnectFrame(dst wire.Endpoint) ([]byte, error) {
	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, dst.Port)

	var atyp byte
	var addr []byte

	switch dst.Kind {
	case wire.KindIPv4:
		atyp, addr = txsocks5.ATYPIPv4, dst.IP.To4()

	case wire.KindIPv6:
		atyp, addr = txsocks5.ATYPIPv6, dst.IP.To16()

	case wire.KindDNS:
		host, err := punycodeHost(dst.Host)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
		}
		if len(host) > 255 {
			return nil, fmt.Errorf("%w: host %q is %d bytes after punycoding", ErrInvalidDestination, host, len(host))
		}
		atyp, addr = txsocks5.ATYPDomain, []byte(host)

	default:
		return nil, fmt.Errorf("%w: unknown endpoint kind", ErrInvalidDestination)
	}

	var buf bytes.Buffer
	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, addr, port).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	return buf.Bytes(), nil
}

// punycodeHost maps a host label to its ASCII-compatible (punycode) form.
// Hosts that are already pure ASCII are passed through untouched: idna's
// validation rules are stricter than what many internal/legacy DNS names
// satisfy, and spec.md only requires punycoding of non-ASCII labels.
func punycodeHost(host string) (string, error) {
	for i := 0; i < len(host); i++ {
		if host[i] > 0x7f {
			ascii, err := idna.ToASCII(host)
			if err != nil {
				return "", fmt.Errorf("idna: %w", err)
			}
			return ascii, nil
		}
	}
	return host, nil
}
