package session

import "github.com/h2s5proxy/bridge/internal/tunnel"

// Status lines are byte-exact ASCII, LF-only (no CR), per spec.md §4.3. This
// asymmetry — the inbound parser tolerates CRLF or LF, but everything this
// proxy itself emits is LF-only — is deliberate (spec.md §9).
const (
	status200ConnectionEstablished = "HTTP/1.1 200 Connection Established\n\n"
	status400BadRequest            = "HTTP/1.1 400 Bad Request\nConnection: close\n\n"
	status403Forbidden             = "HTTP/1.1 403 Forbidden\nConnection: close\n\n"
	status407ProxyAuthRequired     = "HTTP/1.1 407 Proxy Authentication Required\nProxy-Authenticate: Basic realm=\"proxy\"\n\n"
	status500ProxyFailure          = "HTTP/1.1 500 Proxy Failure\nConnection: close\n\n"
)

func writeStatus(ch tunnel.Channel, status string) error {
	if _, err := ch.Write([]byte(status)); err != nil {
		return err
	}
	return ch.Flush()
}
