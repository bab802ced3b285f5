//go:build linux

package proxy

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setListenerOptions sets SO_REUSEPORT when asked, and TCP_QUICKACK on the
// listening socket.
func setListenerOptions(c syscall.RawConn, reusePort bool) error {
	var sysErr error
	err := c.Control(func(fd uintptr) {
		if reusePort {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
				sysErr = e
				return
			}
		}
		// Best effort; not every kernel accepts it before connect.
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
	if err != nil {
		return err
	}
	return sysErr
}
