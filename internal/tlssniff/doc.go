// Package tlssniff extracts diagnostic fields from a TLS ClientHello without
// altering the stream it reads from.
//
// Sniff pulls chunks from a Source, keeps a verbatim copy of every byte it
// consumed, and pushes that copy back onto the Source before returning.
// Whatever happens during parsing, the next reader sees exactly the bytes
// the client sent.
package tlssniff
