package socks5

import (
	"net"
	"strconv"
)

// State is the per-connection handshake record. It is owned by a single
// session and filled in by Negotiate and ReadRequest.
type State struct {
	Version  byte
	NMethods byte
	Methods  []byte

	Command  byte
	AddrType byte

	Host string
	Port uint16

	// Reply is the success reply sent to the client once the upstream
	// connection is up.
	Reply []byte
}

// Address returns the decoded target as host:port.
func (s *State) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}
