package stream

import (
	"errors"
	"io"
)

// DefaultChunkSize is the size of a single read from the underlying source.
const DefaultChunkSize = 32 * 1024

var errNegativeDiscard = errors.New("stream: negative discard")

// Buffer accumulates bytes read from src that have not yet been consumed by
// a parsing stage.
//
// Bytes are consumed strictly in arrival order. A stage may leave a suffix
// in the buffer; the next stage (or the relay, through Read) sees that
// suffix before any further bytes from src.
type Buffer struct {
	src   io.Reader
	acc   []byte
	chunk []byte
	err   error
}

// NewBuffer returns a Buffer reading from src in chunks of chunkSize bytes.
// A chunkSize <= 0 selects DefaultChunkSize.
func NewBuffer(src io.Reader, chunkSize int) *Buffer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Buffer{src: src, chunk: make([]byte, chunkSize)}
}

// Len returns the number of buffered, unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.acc)
}

// Bytes returns the buffered bytes. The slice is only valid until the next
// call that modifies the Buffer.
func (b *Buffer) Bytes() []byte {
	return b.acc
}

// Next returns the next chunk of input: the buffered bytes if any are
// pending, otherwise the next chunk read from src. The returned bytes are
// consumed; use Unread to give them back.
func (b *Buffer) Next() ([]byte, error) {
	if len(b.acc) > 0 {
		p := b.acc
		b.acc = nil
		return p, nil
	}
	return b.readChunk()
}

// Fill reads from src until at least n bytes are buffered. It returns the
// source error (io.EOF at end of stream) if that never happens; any bytes
// read before the error stay buffered.
func (b *Buffer) Fill(n int) error {
	for len(b.acc) < n {
		p, err := b.readChunk()
		if err != nil {
			return err
		}
		b.acc = append(b.acc, p...)
	}
	return nil
}

// Discard drops the first n buffered bytes.
func (b *Buffer) Discard(n int) error {
	if n < 0 {
		return errNegativeDiscard
	}
	if n > len(b.acc) {
		return io.ErrShortBuffer
	}
	b.acc = b.acc[n:]
	if len(b.acc) == 0 {
		b.acc = nil
	}
	return nil
}

// Take removes the first n buffered bytes and returns a copy of them.
func (b *Buffer) Take(n int) ([]byte, error) {
	if n > len(b.acc) {
		return nil, io.ErrShortBuffer
	}
	p := make([]byte, n)
	copy(p, b.acc)
	return p, b.Discard(n)
}

// Unread pushes p back in front of the buffered bytes, so that the next
// read observes p first.
func (b *Buffer) Unread(p []byte) {
	if len(p) == 0 {
		return
	}
	acc := make([]byte, 0, len(p)+len(b.acc))
	acc = append(acc, p...)
	b.acc = append(acc, b.acc...)
}

// Read drains buffered bytes first, then reads directly from src.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(b.acc) > 0 {
		n := copy(p, b.acc)
		_ = b.Discard(n)
		return n, nil
	}
	if b.err != nil {
		err := b.err
		b.err = nil
		return 0, err
	}
	return b.src.Read(p)
}

// WriteTo writes buffered bytes to w, then copies the rest of src.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	if len(b.acc) > 0 {
		n, err := w.Write(b.acc)
		total += int64(n)
		_ = b.Discard(n)
		if err != nil {
			return total, err
		}
	}
	if b.err != nil {
		err := b.err
		b.err = nil
		if err == io.EOF {
			return total, nil
		}
		return total, err
	}
	n, err := io.Copy(w, b.src)
	return total + n, err
}

// readChunk returns a copy of the next non-empty read from src. An error
// returned together with data is held back until the following call.
func (b *Buffer) readChunk() ([]byte, error) {
	if b.err != nil {
		err := b.err
		b.err = nil
		return nil, err
	}
	for {
		n, err := b.src.Read(b.chunk)
		if n > 0 {
			b.err = err
			p := make([]byte, n)
			copy(p, b.chunk[:n])
			return p, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
