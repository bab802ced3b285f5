package proxy

import (
	"context"
	"errors"

	"github.com/die-net/socksniff/internal/socks5"
)

type errorClass int

const (
	classNone errorClass = iota
	// classCanceled is intended teardown and never reported.
	classCanceled
	// classProtocol is malformed or refused client input.
	classProtocol
	// classTransient covers connect failures, disconnects and I/O errors.
	classTransient
)

func (c errorClass) String() string {
	switch c {
	case classNone:
		return "none"
	case classCanceled:
		return "canceled"
	case classProtocol:
		return "protocol"
	case classTransient:
		return "transient"
	default:
		return "unknown"
	}
}

func classify(err error) errorClass {
	switch {
	case err == nil:
		return classNone
	case socks5.IsProtocolError(err):
		return classProtocol
	case errors.Is(err, context.Canceled):
		return classCanceled
	default:
		return classTransient
	}
}
