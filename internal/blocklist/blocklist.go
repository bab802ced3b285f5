// Package blocklist holds the process-wide set of targets the proxy refuses
// to connect to.
package blocklist

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default entries are always present: the unspecified IPv4 and IPv6
// addresses and port 0.
var (
	DefaultHosts = []string{"0.0.0.0", "::"}
	DefaultPorts = []uint16{0}
)

// File is the YAML layout of a block-list file.
type File struct {
	Hosts []string `yaml:"hosts"`
	Ports []int    `yaml:"ports"`
}

// List is a read-only set of blocked hosts and ports. It is safe for
// concurrent use once constructed.
type List struct {
	hosts map[string]struct{}
	ports map[uint16]struct{}
}

// New returns a List containing the defaults plus hosts and ports.
func New(hosts []string, ports []uint16) *List {
	l := &List{
		hosts: make(map[string]struct{}, len(DefaultHosts)+len(hosts)),
		ports: make(map[uint16]struct{}, len(DefaultPorts)+len(ports)),
	}
	for _, h := range append(append([]string(nil), DefaultHosts...), hosts...) {
		l.hosts[normalizeHost(h)] = struct{}{}
	}
	for _, p := range append(append([]uint16(nil), DefaultPorts...), ports...) {
		l.ports[p] = struct{}{}
	}
	return l
}

// Load reads a YAML block-list file and merges it with the defaults and the
// extra hosts and ports given.
func Load(path string, hosts []string, ports []uint16) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read block list: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse block list: %w", err)
	}

	filePorts, err := ParsePorts(f.Ports)
	if err != nil {
		return nil, fmt.Errorf("block list %s: %w", path, err)
	}
	for i, h := range f.Hosts {
		if strings.TrimSpace(h) == "" {
			return nil, fmt.Errorf("block list %s: hosts[%d]: empty host", path, i)
		}
	}

	return New(append(f.Hosts, hosts...), append(filePorts, ports...)), nil
}

// ParsePorts validates ports as 0-65535.
func ParsePorts(ports []int) ([]uint16, error) {
	out := make([]uint16, 0, len(ports))
	for i, p := range ports {
		if p < 0 || p > 65535 {
			return nil, fmt.Errorf("ports[%d]: %d out of range (0-65535)", i, p)
		}
		out = append(out, uint16(p))
	}
	return out, nil
}

// Blocked reports whether host or port is in the list.
func (l *List) Blocked(host string, port uint16) bool {
	if _, ok := l.ports[port]; ok {
		return true
	}
	_, ok := l.hosts[normalizeHost(host)]
	return ok
}

// Len returns the number of blocked hosts and ports.
func (l *List) Len() (hosts, ports int) {
	return len(l.hosts), len(l.ports)
}

// normalizeHost lower-cases names and canonicalizes IP literals so that
// "::0001" and "::1" match.
func normalizeHost(h string) string {
	h = strings.TrimSpace(h)
	if ip := net.ParseIP(h); ip != nil {
		return ip.String()
	}
	return strings.ToLower(strings.TrimSuffix(h, "."))
}
