package dialer

import (
	"net"
	"time"
)

type Config struct {
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig

	// DNSServer, if set, is the host[:port] used to resolve domain targets.
	DNSServer string
}
