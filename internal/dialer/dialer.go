package dialer

import (
	"context"
	"fmt"
	"net"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New constructs the outbound Dialer described by cfg.
func New(cfg Config) (Dialer, error) {
	d, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, fmt.Errorf("dialer: %w", err)
	}
	return d, nil
}
