// Package proxy implements the socksniff SOCKS5 listener and the
// per-connection session pipeline.
//
// A session runs negotiation, request decoding, validation, the upstream
// connect and, in debug mode, a TLS ClientHello sniff pass, then relays
// bytes in both directions until either side stops. Errors never escape a
// session; they are classified and logged.
package proxy
