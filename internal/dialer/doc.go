// Package dialer provides the outbound connector used by socksniff
// sessions.
//
// Dialers implement a small interface (DialContext). The direct dialer opens
// a plain TCP connection to the target, optionally resolving domain names
// through a configured DNS server instead of the system resolver.
package dialer
