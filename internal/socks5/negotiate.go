package socks5

import (
	"errors"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/socksniff/internal/stream"
)

var noAuthReply = []byte{txsocks5.Ver, txsocks5.MethodNone}

// Negotiate consumes the greeting (VER NMETHODS METHODS) from in and writes
// the method selection reply to w.
//
// "No authentication" is always selected, whatever the client offers. Any
// bytes following the method list stay buffered in in.
func Negotiate(in *stream.Buffer, w io.Writer, st *State) error {
	if err := fill(in, 2); err != nil {
		return err
	}

	hdr := in.Bytes()
	st.Version, st.NMethods = hdr[0], hdr[1]
	if st.Version != txsocks5.Ver {
		return ErrBadVersion
	}

	n := 2 + int(st.NMethods)
	if err := fill(in, n); err != nil {
		return err
	}

	greeting, err := in.Take(n)
	if err != nil {
		return err
	}
	st.Methods = greeting[2:]
	if len(st.Methods) == 0 {
		return ErrUnidentified
	}

	if _, err := w.Write(noAuthReply); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// fill maps end of stream before n bytes arrive to ErrUnidentified.
func fill(in *stream.Buffer, n int) error {
	err := in.Fill(n)
	if errors.Is(err, io.EOF) {
		return ErrUnidentified
	}
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}
