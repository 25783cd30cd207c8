package socksclient

import (
	"bytes"
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
)

// Credential is a pre-serialized SOCKS5 username/password sub-negotiation
// packet (RFC 1929): 0x01, usernameLen, username, passwordLen, password. The
// zero value means "no outbound credential configured".
type Credential struct {
	packet []byte
}

// NewCredential serializes user/pass into the RFC 1929 packet once, at
// configuration time, via txsocks5.NewUserPassNegotiationRequest; both user
// and pass must fit in a single length byte.
func NewCredential(user, pass string) (Credential, error) {
	if len(user) > 255 {
		return Credential{}, fmt.Errorf("socks5 credential: username too long (%d bytes)", len(user))
	}
	if len(pass) > 255 {
		return Credential{}, fmt.Errorf("socks5 credential: password too long (%d bytes)", len(pass))
	}

	var buf bytes.Buffer
	if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(user), []byte(pass)).WriteTo(&buf); err != nil {
		return Credential{}, fmt.Errorf("socks5 credential: %w", err)
	}

	return Credential{packet: buf.Bytes()}, nil
}

// Configured reports whether a credential was set.
func (c Credential) Configured() bool { return len(c.packet) > 0 }

// Packet returns the raw wire bytes of the sub-negotiation request.
func (c Credential) Packet() []byte { return c.packet }
