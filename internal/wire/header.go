// Package wire implements the inbound HTTP/1.1 proxy-request wire format:
// incremental request-line/header parsing tolerant of partial reads, and the
// Endpoint destination model shared with internal/socksclient.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/h2s5proxy/bridge/internal/bufpool"
)

// MaximumHeaderAreaSize bounds the cumulative number of bytes read from the
// source while parsing one request's header block, across all buffer
// compactions. It is intentionally larger than the 16 KiB secondary buffer:
// the per-buffer cap below catches one oversized line or request line, this
// one catches an unbounded number of small header lines.
const MaximumHeaderAreaSize = 81920

// ErrorKind classifies a HeaderParser failure.
type ErrorKind int

const (
	NetworkClosed ErrorKind = iota
	Malformed
	HeaderTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkClosed:
		return "NetworkClosed"
	case Malformed:
		return "Malformed"
	case HeaderTooLarge:
		return "HeaderTooLarge"
	default:
		return "Unknown"
	}
}

// ParseError is returned by HeaderParser.Parse on any failure.
type ParseError struct {
	Kind ErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("header parse: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("header parse: %s", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

func fail(kind ErrorKind, err error) error {
	return &ParseError{Kind: kind, Err: err}
}

// Header is a single name/value pair, preserving the case and order in which
// it appeared on the wire.
type Header struct {
	Name  string
	Value string
}

// ParsedRequest is the result of successfully parsing one request's
// request-line and header block.
type ParsedRequest struct {
	Method  string
	URL     string
	Headers []Header

	ProxyAuthorization    string
	HasProxyAuthorization bool

	// RemainingBytes holds any bytes read past the header-terminating blank
	// line: already-buffered client bytes that belong to the request body
	// (for CONNECT, the first bytes of the tunneled stream).
	RemainingBytes []byte
}

// HeaderParser incrementally parses one HTTP/1.1 request-line and header
// block from a byte stream, per spec: LF-terminated lines with optional CR,
// a two-tier 4 KiB/16 KiB buffer, and a hard cap on total header-area bytes.
type HeaderParser struct{}

// Parse consumes bytes from r until the header-terminating blank line,
// returning the parsed request or a *ParseError. Cancellation is achieved by
// the caller closing/interrupting r (e.g. via context.AfterFunc closing the
// underlying connection) — Parse itself performs plain blocking reads, the
// idiomatic Go equivalent of a cooperative suspension point.
func (HeaderParser) Parse(r io.Reader) (*ParsedRequest, error) {
	buf := bufpool.GetPrimary()
	usingSecondary := false
	defer func() {
		if usingSecondary {
			bufpool.PutSecondary(buf)
		} else {
			bufpool.PutPrimary(buf)
		}
	}()

	var (
		filled          int
		totalRead       int
		haveRequestLine bool
		method, url     string
		headers         []Header
		proxyAuth       string
		hasProxyAuth    bool
	)

	for {
		for {
			line, rest, ok := splitLine(buf[:filled])
			if !ok {
				break
			}

			if !haveRequestLine {
				m, u, err := parseRequestLine(line)
				if err != nil {
					return nil, err
				}
				method, url = m, u
				haveRequestLine = true
			} else if len(line) == 0 {
				remaining := append([]byte(nil), rest...)
				return &ParsedRequest{
					Method:                method,
					URL:                   url,
					Headers:               headers,
					ProxyAuthorization:    proxyAuth,
					HasProxyAuthorization: hasProxyAuth,
					RemainingBytes:        remaining,
				}, nil
			} else {
				name, value, err := parseHeaderLine(line)
				if err != nil {
					return nil, err
				}
				if strings.HasPrefix(strings.ToLower(name), "proxy-") {
					if strings.EqualFold(name, "Proxy-Authorization") {
						proxyAuth = value
						hasProxyAuth = true
					}
				} else {
					headers = append(headers, Header{Name: name, Value: value})
				}
			}

			copy(buf, rest)
			filled = len(rest)
		}

		if filled == len(buf) {
			if usingSecondary {
				return nil, fail(HeaderTooLarge, errors.New("secondary buffer exhausted"))
			}
			sec := bufpool.GetSecondary()
			copy(sec, buf[:filled])
			bufpool.PutPrimary(buf)
			buf = sec
			usingSecondary = true
		}

		n, err := r.Read(buf[filled:])
		totalRead += n
		if totalRead > MaximumHeaderAreaSize {
			return nil, fail(HeaderTooLarge, errors.New("maximum header area size exceeded"))
		}
		if n == 0 {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return nil, fail(NetworkClosed, err)
		}
		filled += n
	}
}

// splitLine locates the first LF in buf, returning the line with any
// trailing CR stripped and the remainder after the LF.
func splitLine(buf []byte) (line, rest []byte, ok bool) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return nil, nil, false
	}
	line = buf[:idx]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, buf[idx+1:], true
}

func parseRequestLine(line []byte) (method, url string, err error) {
	i := bytes.IndexByte(line, ' ')
	if i <= 0 {
		return "", "", fail(Malformed, errors.New("missing method"))
	}
	rest := line[i+1:]
	j := bytes.IndexByte(rest, ' ')
	if j <= 0 {
		return "", "", fail(Malformed, errors.New("missing request-target"))
	}
	version := rest[j+1:]
	if string(version) != "HTTP/1.1" {
		return "", "", fail(Malformed, fmt.Errorf("unsupported version %q", version))
	}
	m := string(line[:i])
	u := string(rest[:j])
	if m == "" || u == "" {
		return "", "", fail(Malformed, errors.New("empty method or url"))
	}
	return m, u, nil
}

func parseHeaderLine(line []byte) (name, value string, err error) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", fail(Malformed, errors.New("missing ':' in header line"))
	}
	nameBytes := line[:idx]
	if bytes.IndexByte(nameBytes, '\r') >= 0 {
		return "", "", fail(Malformed, errors.New("CR in header name"))
	}
	name = strings.TrimSpace(string(nameBytes))
	if name == "" {
		return "", "", fail(Malformed, errors.New("empty header name"))
	}
	value = strings.TrimSpace(string(line[idx+1:]))
	return name, value, nil
}
