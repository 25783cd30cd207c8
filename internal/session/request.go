package session

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/h2s5proxy/bridge/internal/wire"
)

var errDestination = errors.New("session: invalid destination")

// connectDestination parses a CONNECT request-target of the form
// "host:port", splitting at the last colon (net.SplitHostPort handles
// bracketed IPv6 literals; an unbracketed one it rejects is split at the
// last colon directly), validating the port as 16-bit unsigned, and
// classifying the host as a literal IP or a DNS name.
func connectDestination(target string) (wire.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		i := strings.LastIndexByte(target, ':')
		if i < 0 {
			return wire.Endpoint{}, fmt.Errorf("%w: %v", errDestination, err)
		}
		host, portStr = target[:i], target[i+1:]
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return wire.Endpoint{}, fmt.Errorf("%w: bad port %q", errDestination, portStr)
	}

	return wire.ParseLiteralOrDNS(host, uint16(port)), nil
}

// absoluteFormDestination parses the request-target of a non-CONNECT
// request as an absolute-form URI, rejecting non-http schemes, and returns
// both the destination Endpoint and the origin-form path-and-query to
// forward.
func absoluteFormDestination(rawURL string) (wire.Endpoint, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return wire.Endpoint{}, "", fmt.Errorf("%w: %v", errDestination, err)
	}
	if !strings.EqualFold(u.Scheme, "http") {
		return wire.Endpoint{}, "", fmt.Errorf("%w: unsupported scheme %q", errDestination, u.Scheme)
	}
	if u.Host == "" {
		return wire.Endpoint{}, "", fmt.Errorf("%w: missing host", errDestination)
	}

	host := u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		portStr = "80"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return wire.Endpoint{}, "", fmt.Errorf("%w: bad port %q", errDestination, portStr)
	}

	return wire.ParseLiteralOrDNS(host, uint16(port)), u.RequestURI(), nil
}

// synthesizeOriginRequest renders the origin-form HTTP/1.1 request this
// proxy sends upstream for a non-CONNECT method, per spec.md §4.3: the
// request line uses the path-and-query only, each retained header is
// forwarded verbatim in appearance order (Proxy-* headers were already
// stripped by the wire parser), and line endings are LF-only regardless of
// what the client sent.
func synthesizeOriginRequest(method, pathAndQuery string, headers []wire.Header, remaining []byte) []byte {
	var b []byte
	b = append(b, method...)
	b = append(b, ' ')
	b = append(b, pathAndQuery...)
	b = append(b, " HTTP/1.1\n"...)
	for _, h := range headers {
		b = append(b, h.Name...)
		b = append(b, ':', ' ')
		b = append(b, h.Value...)
		b = append(b, '\n')
	}
	b = append(b, '\n')
	b = append(b, remaining...)
	return b
}
