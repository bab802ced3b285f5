package proxy

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// ListenConfig holds the socket options applied by ListenTCP.
type ListenConfig struct {
	KeepAlive net.KeepAliveConfig
	ReusePort bool
}

// ListenTCP listens on the given network/address and returns a net.Listener
// that applies lcfg to the listening socket and to accepted connections.
func ListenTCP(network, addr string, lcfg ListenConfig) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setListenerOptions(c, lcfg.ReusePort)
		},
	}

	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: lcfg.KeepAlive}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig and
// TCP_NODELAY to any accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and tunes it if it is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
		_ = tc.SetNoDelay(true)
	}

	return conn, nil
}
