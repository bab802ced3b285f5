//go:build !linux

package proxy

import (
	"errors"
	"syscall"
)

func setListenerOptions(_ syscall.RawConn, reusePort bool) error {
	if reusePort {
		return errors.New("reuse port is only supported on linux")
	}
	return nil
}
