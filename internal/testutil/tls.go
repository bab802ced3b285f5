package testutil

import (
	"bytes"
	"crypto/tls"

	"golang.org/x/crypto/cryptobyte"
)

// Field values used by ClientHelloRecord.
var (
	HelloRandom    = bytes.Repeat([]byte{0xAB}, 32)
	HelloSessionID = []byte{1, 2, 3, 4}
	HelloSuites    = []uint16{tls.TLS_AES_128_GCM_SHA256, tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256}
)

// AlertRecord is a complete TLS alert record.
var AlertRecord = []byte{21, 0x03, 0x03, 0x00, 0x02, 0x01, 0x00}

// ClientHelloRecord returns one TLS 1.0 framed Handshake record carrying a
// TLS 1.2 ClientHello with a server_name extension for sni followed by an
// empty extended_master_secret extension.
func ClientHelloRecord(sni string) []byte {
	var b cryptobyte.Builder
	b.AddUint8(22) // handshake
	b.AddUint16(tls.VersionTLS10)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(1) // client_hello
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16(tls.VersionTLS12)
			b.AddBytes(HelloRandom)
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(HelloSessionID)
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, id := range HelloSuites {
					b.AddUint16(id)
				}
			})
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8(0)
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(0) // server_name
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddUint8(0) // host_name
						b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
							b.AddBytes([]byte(sni))
						})
					})
				})
				b.AddUint16(23) // extended_master_secret
				b.AddUint16(0)
			})
		})
	})
	return b.BytesOrPanic()
}
