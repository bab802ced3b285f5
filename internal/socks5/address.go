package socks5

import (
	"encoding/binary"
	"net"
	"unicode/utf8"

	txsocks5 "github.com/txthinking/socks5"
)

// headerLen is the VER CMD RSV ATYP prefix every decoder sees at offset 0.
const headerLen = 4

// Target is a fully decoded request destination.
type Target struct {
	Host  string
	Port  uint16
	Reply []byte
}

// AddressDecoder decodes a complete request, including its 4-byte header,
// from the front of p.
//
// It returns n == 0 and a nil error while p is still too short; the caller
// retries with more input. On success n is the number of bytes consumed.
type AddressDecoder interface {
	Decode(p []byte) (t Target, n int, err error)
}

// decoders maps ATYP to its decoder.
var decoders = map[byte]AddressDecoder{
	txsocks5.ATYPIPv4:   ipv4Decoder{},
	txsocks5.ATYPDomain: domainDecoder{},
	txsocks5.ATYPIPv6:   ipv6Decoder{},
}

// DecoderFor returns the decoder registered for atyp.
func DecoderFor(atyp byte) (AddressDecoder, bool) {
	d, ok := decoders[atyp]
	return d, ok
}

type ipv4Decoder struct{}

func (ipv4Decoder) Decode(p []byte) (Target, int, error) {
	return decodeFixed(p, txsocks5.ATYPIPv4, net.IPv4len)
}

type ipv6Decoder struct{}

func (ipv6Decoder) Decode(p []byte) (Target, int, error) {
	return decodeFixed(p, txsocks5.ATYPIPv6, net.IPv6len)
}

func decodeFixed(p []byte, atyp byte, addrLen int) (Target, int, error) {
	n := headerLen + addrLen + 2
	if len(p) < n {
		return Target{}, 0, nil
	}

	addr := p[headerLen : headerLen+addrLen]
	port := p[headerLen+addrLen : n]

	return Target{
		Host:  net.IP(addr).String(),
		Port:  binary.BigEndian.Uint16(port),
		Reply: successReply(atyp, nil, addr, port),
	}, n, nil
}

type domainDecoder struct{}

func (domainDecoder) Decode(p []byte) (Target, int, error) {
	if len(p) < headerLen+1 {
		return Target{}, 0, nil
	}

	dlen := int(p[headerLen])
	start := headerLen + 1
	n := start + dlen + 2
	if len(p) < n {
		return Target{}, 0, nil
	}

	domain := p[start : start+dlen]
	if !utf8.Valid(domain) {
		return Target{}, 0, ErrBadDomain
	}
	port := p[start+dlen : n]

	return Target{
		Host:  string(domain),
		Port:  binary.BigEndian.Uint16(port),
		Reply: successReply(txsocks5.ATYPDomain, []byte{byte(dlen)}, domain, port),
	}, n, nil
}

// successReply builds VER REP RSV ATYP [prefix] ADDR PORT, echoing the
// request's own address as the bound address.
func successReply(atyp byte, prefix, addr, port []byte) []byte {
	b := make([]byte, 0, headerLen+len(prefix)+len(addr)+len(port))
	b = append(b, txsocks5.Ver, txsocks5.RepSuccess, 0x00, atyp)
	b = append(b, prefix...)
	b = append(b, addr...)
	return append(b, port...)
}
