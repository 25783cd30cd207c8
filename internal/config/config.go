// Package config holds the immutable, process-wide configuration described
// by spec.md §6: listen/upstream endpoints and the two independent
// credentials, each encoded once at construction time into the form the
// hot path compares against directly.
package config

import (
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"github.com/h2s5proxy/bridge/internal/socksclient"
)

// Config is read-only once constructed and shared by every session; no
// cross-session mutable state exists anywhere in the proxy.
type Config struct {
	ListenAddr string
	Backlog    int

	SOCKSUpstreamAddr string
	SOCKSMode         socksclient.Mode
	SOCKSCredential   socksclient.Credential // zero value: no outbound auth

	// InboundToken is the Base64 value clients must present after "Basic ".
	// HasInboundAuth is false when no inbound credential is configured, in
	// which case InboundToken is ignored.
	InboundToken   string
	HasInboundAuth bool

	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	GracePeriod        time.Duration
	KeepAlive          net.KeepAliveConfig

	Verbose bool
}

// New builds a Config from raw collaborator-supplied values, Base64-encoding
// the inbound credential and serializing the outbound one exactly once, per
// spec.md §6.
func New(
	listenAddr string,
	backlog int,
	socksUpstreamAddr string,
	mode socksclient.Mode,
	inboundUser, inboundPass string,
	outboundUser, outboundPass string,
	dialTimeout, negotiationTimeout, gracePeriod time.Duration,
	keepAlive net.KeepAliveConfig,
	verbose bool,
) (Config, error) {
	cfg := Config{
		ListenAddr:         listenAddr,
		Backlog:            backlog,
		SOCKSUpstreamAddr:  socksUpstreamAddr,
		SOCKSMode:          mode,
		DialTimeout:        dialTimeout,
		NegotiationTimeout: negotiationTimeout,
		GracePeriod:        gracePeriod,
		KeepAlive:          keepAlive,
		Verbose:            verbose,
	}

	if inboundUser != "" || inboundPass != "" {
		cfg.InboundToken = base64.StdEncoding.EncodeToString([]byte(inboundUser + ":" + inboundPass))
		cfg.HasInboundAuth = true
	}

	if outboundUser != "" || outboundPass != "" {
		cred, err := socksclient.NewCredential(outboundUser, outboundPass)
		if err != nil {
			return Config{}, fmt.Errorf("outbound credential: %w", err)
		}
		cfg.SOCKSCredential = cred
	}

	return cfg, nil
}
