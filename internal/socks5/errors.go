package socks5

import "errors"

// ProtocolError reports malformed or unsupported client input. It is fatal
// to the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "socks5: " + e.Reason
}

var (
	ErrBadVersion      = &ProtocolError{Reason: "bad version"}
	ErrUnidentified    = &ProtocolError{Reason: "unidentified request"}
	ErrUnknownAddrType = &ProtocolError{Reason: "unknown address type"}
	ErrHostBlocked     = &ProtocolError{Reason: "host blocked"}
	ErrBadDomain       = &ProtocolError{Reason: "domain is not valid utf-8"}
)

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
