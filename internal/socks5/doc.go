// Package socks5 implements the server side of the SOCKS5 handshake used by
// socksniff.
//
// It parses the greeting and the CONNECT-style request incrementally from a
// stream.Buffer, so any fragmentation of the client's bytes produces the
// same result. Address-type decoders are looked up in a fixed registry and
// each builds the success reply that is sent once the upstream connection is
// established.
//
// Only the "no authentication" method is ever selected, and BIND and UDP
// ASSOCIATE are not supported.
package socks5
