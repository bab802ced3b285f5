package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

var errNoRecords = errors.New("no address records")

// Resolver looks up domain names against a single DNS server.
type Resolver struct {
	server string
	client *dns.Client
}

// NewResolver returns a Resolver querying server over UDP. A server without
// a port uses 53.
func NewResolver(server string, timeout time.Duration) (*Resolver, error) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		return nil, fmt.Errorf("dns server %q: %w", server, err)
	}

	return &Resolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

// LookupIP returns the first A record for host, falling back to AAAA.
func (r *Resolver) LookupIP(ctx context.Context, host string) (net.IP, error) {
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		resp, _, err := r.client.ExchangeContext(ctx, m, r.server)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
		if resp.Rcode == dns.RcodeNameError {
			return nil, fmt.Errorf("resolve %s: %s", host, dns.RcodeToString[resp.Rcode])
		}

		for _, rr := range resp.Answer {
			switch a := rr.(type) {
			case *dns.A:
				return a.A, nil
			case *dns.AAAA:
				return a.AAAA, nil
			}
		}
	}

	return nil, fmt.Errorf("resolve %s: %w", host, errNoRecords)
}
