//go:build !unix

package netutil

import "syscall"

// controlReuseAddr is a no-op on platforms without SO_REUSEADDR-via-unix
// support (e.g. windows, plan9).
func controlReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
