//go:build unix

package netutil

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuseAddr sets SO_REUSEADDR on the listening socket before bind,
// the way the teacher's tproxy listeners use a net.ListenConfig.Control
// callback plus golang.org/x/sys/unix to tune socket options ahead of
// listen(2) — here for a plain restart-friendly listener rather than
// TPROXY's IP_TRANSPARENT/IP_BINDANY.
func controlReuseAddr(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
