package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestFillAcrossFragments(t *testing.T) {
	b := NewBuffer(iotest.OneByteReader(strings.NewReader("hello world")), 0)

	if err := b.Fill(5); err != nil {
		t.Fatal(err)
	}
	if got := string(b.Bytes()); got != "hello" {
		t.Fatalf("got %q want %q", got, "hello")
	}

	p, err := b.Take(6)
	if err == nil {
		t.Fatalf("take beyond buffered bytes: got %q, want error", p)
	}

	if err := b.Fill(11); err != nil {
		t.Fatal(err)
	}
	if err := b.Fill(12); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v want EOF", err)
	}
	if b.Len() != 11 {
		t.Fatalf("got len %d want 11", b.Len())
	}
}

func TestDiscardAndRead(t *testing.T) {
	b := NewBuffer(strings.NewReader("0123456789"), 4)
	if err := b.Fill(4); err != nil {
		t.Fatal(err)
	}
	if err := b.Discard(2); err != nil {
		t.Fatal(err)
	}
	rest, err := io.ReadAll(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "23456789" {
		t.Fatalf("got %q", rest)
	}
	if err := b.Discard(-1); err == nil {
		t.Fatal("expected error for negative discard")
	}
}

func TestUnreadIsIdempotent(t *testing.T) {
	const input = "abcdefghijklmnop"

	tests := []struct {
		name  string
		split int
	}{
		{name: "nothing", split: 0},
		{name: "prefix", split: 3},
		{name: "everything", split: len(input)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(iotest.HalfReader(strings.NewReader(input)), 5)

			var taken []byte
			for len(taken) < tt.split {
				p, err := b.Next()
				if err != nil {
					t.Fatal(err)
				}
				taken = append(taken, p...)
			}
			b.Unread(taken)

			got, err := io.ReadAll(b)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != input {
				t.Fatalf("got %q want %q", got, input)
			}
		})
	}
}

func TestWriteToFlushesBufferedFirst(t *testing.T) {
	b := NewBuffer(strings.NewReader("tail"), 0)
	b.Unread([]byte("head-"))

	var out bytes.Buffer
	n, err := b.WriteTo(&out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 9 || out.String() != "head-tail" {
		t.Fatalf("got %d %q", n, out.String())
	}
}

func TestErrorWithDataIsDeferred(t *testing.T) {
	b := NewBuffer(iotest.DataErrReader(strings.NewReader("xy")), 0)

	p, err := b.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "xy" {
		t.Fatalf("got %q", p)
	}
	if _, err := b.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v want EOF", err)
	}
}
