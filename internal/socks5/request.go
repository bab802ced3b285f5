package socks5

import (
	"github.com/die-net/socksniff/internal/stream"
)

// ReadRequest consumes one request (VER CMD RSV ATYP ADDR PORT) from in,
// recording the header fields and the decoded target in st.
//
// The command byte is recorded but not checked. Bytes after the request
// stay buffered for the relay.
func ReadRequest(in *stream.Buffer, st *State) error {
	if err := fill(in, headerLen); err != nil {
		return err
	}

	hdr := in.Bytes()
	st.Version, st.Command, st.AddrType = hdr[0], hdr[1], hdr[3]

	dec, ok := DecoderFor(st.AddrType)
	if !ok {
		return ErrUnknownAddrType
	}

	// The header stays buffered; decoders frame from offset 0.
	for {
		t, n, err := dec.Decode(in.Bytes())
		if err != nil {
			return err
		}
		if n > 0 {
			st.Host, st.Port, st.Reply = t.Host, t.Port, t.Reply
			return in.Discard(n)
		}
		if err := fill(in, in.Len()+1); err != nil {
			return err
		}
	}
}
