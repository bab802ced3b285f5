package proxy

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksniff/internal/dialer"
	"github.com/die-net/socksniff/internal/socks5"
)

// Config holds the settings shared by every session of a SOCKS5Server.
type Config struct {
	// NegotiationTimeout bounds the handshake up to the success reply.
	// Zero means no timeout.
	NegotiationTimeout time.Duration

	// Sniff enables the TLS ClientHello diagnostic pass.
	Sniff        bool
	SniffTimeout time.Duration

	// AuthRequired is carried for configuration compatibility only. Sessions
	// never read it: "no authentication" is always selected.
	AuthRequired bool

	KeepAlive net.KeepAliveConfig

	Dialer    dialer.Dialer
	BlockList socks5.Blocker

	Logger  *zap.Logger
	Verbose bool
}
