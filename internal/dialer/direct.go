package dialer

import (
	"context"
	"fmt"
	"net"
)

type directDialer struct {
	dialer   net.Dialer
	resolver *Resolver
}

// NewDirectDialer returns a Dialer that connects straight to the target.
func NewDirectDialer(cfg Config) (Dialer, error) {
	d := &directDialer{
		dialer: net.Dialer{
			Timeout:         cfg.DialTimeout,
			KeepAliveConfig: cfg.KeepAlive,
		},
	}

	if cfg.DNSServer != "" {
		r, err := NewResolver(cfg.DNSServer, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		d.resolver = r
	}

	return d, nil
}

func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.resolver != nil {
		resolved, err := d.resolve(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
		}
		address = resolved
	}

	conn, err := d.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	return conn, nil
}

// resolve replaces a domain host in address with its first resolved IP.
func (d *directDialer) resolve(ctx context.Context, address string) (string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", err
	}
	if net.ParseIP(host) != nil {
		return address, nil
	}

	ip, err := d.resolver.LookupIP(ctx, host)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip.String(), port), nil
}
