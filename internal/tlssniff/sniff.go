package tlssniff

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
)

const (
	recordHeaderLen = 5

	// maxRecordLen is the largest TLSCiphertext fragment (2^14 + 2048).
	maxRecordLen = 16384 + 2048

	recordTypeChangeCipherSpec = 20
	recordTypeHeartbeat        = 24
	recordTypeHandshake        = 22

	handshakeTypeClientHello = 1

	extensionServerName = 0
	serverNameTypeHost  = 0
)

// ErrMalformed is returned when a complete ClientHello record does not
// parse.
var ErrMalformed = errors.New("tlssniff: malformed client hello")

// Source is a byte stream that can give back consumed bytes.
type Source interface {
	// Next returns the next chunk of input.
	Next() ([]byte, error)
	// Unread pushes p back in front of any remaining input.
	Unread(p []byte)
}

// ClientHello holds the fields extracted from one ClientHello message.
type ClientHello struct {
	RecordVersion      uint16
	Version            uint16
	Random             [32]byte
	SessionID          []byte
	CipherSuites       []uint16
	CompressionMethods []byte
	Extensions         []uint16
	ServerName         string

	// Raw is every byte consumed while sniffing, including skipped
	// records before the ClientHello.
	Raw []byte
}

// VersionName returns the client version as text, e.g. "TLS 1.2".
func (h *ClientHello) VersionName() string {
	return tls.VersionName(h.Version)
}

// CipherSuiteNames returns the offered cipher suites as names.
func (h *ClientHello) CipherSuiteNames() []string {
	names := make([]string, 0, len(h.CipherSuites))
	for _, id := range h.CipherSuites {
		names = append(names, tls.CipherSuiteName(id))
	}
	return names
}

// Sniff reads TLS records from src until it has parsed one ClientHello.
// Records that are not a Handshake carrying a ClientHello are skipped.
//
// It returns a nil ClientHello and a nil error when the stream ends first
// or does not look like TLS. Any read error other than io.EOF is returned.
// In every case the consumed bytes are pushed back onto src unchanged.
func Sniff(src Source) (*ClientHello, error) {
	var raw, buf []byte
	defer func() { src.Unread(raw) }()

	for {
		if len(buf) >= recordHeaderLen {
			typ := buf[0]
			vers := binary.BigEndian.Uint16(buf[1:3])
			n := int(binary.BigEndian.Uint16(buf[3:5]))
			if !plausibleRecord(typ, vers, n) {
				return nil, nil
			}

			if len(buf) >= recordHeaderLen+n {
				rec := buf[recordHeaderLen : recordHeaderLen+n]
				buf = buf[recordHeaderLen+n:]

				if typ != recordTypeHandshake || len(rec) == 0 || rec[0] != handshakeTypeClientHello {
					continue
				}

				h, err := parseClientHello(rec)
				if err != nil {
					return nil, err
				}
				h.RecordVersion = vers
				h.Raw = raw
				return h, nil
			}
		}

		chunk, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
		raw = append(raw, chunk...)
		buf = append(buf, chunk...)
	}
}

func plausibleRecord(typ byte, vers uint16, n int) bool {
	return typ >= recordTypeChangeCipherSpec && typ <= recordTypeHeartbeat &&
		vers>>8 == 3 && n <= maxRecordLen
}

// parseClientHello parses a handshake message starting at its type byte.
// A message longer than the record is parsed as far as the record goes.
func parseClientHello(msg []byte) (*ClientHello, error) {
	s := cryptobyte.String(msg)

	var (
		hsType uint8
		hsLen  uint32
	)
	if !s.ReadUint8(&hsType) || !s.ReadUint24(&hsLen) {
		return nil, fmt.Errorf("%w: handshake header", ErrMalformed)
	}
	if int(hsLen) < len(s) {
		s = s[:hsLen]
	}

	h := &ClientHello{}
	var sessionID, compression cryptobyte.String
	if !s.ReadUint16(&h.Version) || !s.CopyBytes(h.Random[:]) || !s.ReadUint8LengthPrefixed(&sessionID) {
		return nil, fmt.Errorf("%w: session id", ErrMalformed)
	}
	h.SessionID = append([]byte(nil), sessionID...)

	var suites cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&suites) {
		return nil, fmt.Errorf("%w: cipher suites", ErrMalformed)
	}
	for !suites.Empty() {
		var id uint16
		if !suites.ReadUint16(&id) {
			return nil, fmt.Errorf("%w: cipher suites", ErrMalformed)
		}
		h.CipherSuites = append(h.CipherSuites, id)
	}

	if !s.ReadUint8LengthPrefixed(&compression) {
		return nil, fmt.Errorf("%w: compression methods", ErrMalformed)
	}
	h.CompressionMethods = append([]byte(nil), compression...)

	if s.Empty() {
		return h, nil
	}

	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) {
		return nil, fmt.Errorf("%w: extensions", ErrMalformed)
	}
	for !exts.Empty() {
		var (
			typ  uint16
			data cryptobyte.String
		)
		if !exts.ReadUint16(&typ) || !exts.ReadUint16LengthPrefixed(&data) {
			return nil, fmt.Errorf("%w: extension", ErrMalformed)
		}
		h.Extensions = append(h.Extensions, typ)

		if typ == extensionServerName && len(data) > 5 {
			h.ServerName = parseServerName(data)
		}
	}

	return h, nil
}

// parseServerName reads the first host_name entry of a server_name
// extension. Non-ASCII bytes are dropped.
func parseServerName(data cryptobyte.String) string {
	var (
		nameType uint8
		name     cryptobyte.String
	)
	if !data.Skip(2) || !data.ReadUint8(&nameType) || nameType != serverNameTypeHost {
		return ""
	}
	if !data.ReadUint16LengthPrefixed(&name) {
		return ""
	}

	out := make([]byte, 0, len(name))
	for _, c := range name {
		if c < 0x80 {
			out = append(out, c)
		}
	}
	return string(out)
}
