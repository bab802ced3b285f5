package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// aLongTimeAgo is a deadline that has already passed, used to unblock
// pending reads and writes.
var aLongTimeAgo = time.Unix(1, 0)

// Relay copies clientIn to upstream in a background goroutine and upstream
// to client in the calling goroutine. clientIn is the client's read side,
// which may hold bytes already read from client.
//
// As soon as either direction stops, or ctx is done, the other direction is
// cancelled by expiring the deadlines of both connections. Relay never
// closes either connection; that is left to their owner. End of stream,
// disconnects and cancellation are not reported as errors.
func Relay(ctx context.Context, client net.Conn, clientIn io.Reader, upstream net.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		_ = client.SetDeadline(aLongTimeAgo)
		_ = upstream.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		_, err := io.Copy(upstream, clientIn)
		return teardown(err)
	})

	_, err := io.Copy(client, upstream)
	cancel()

	return errors.Join(teardown(err), g.Wait())
}

// teardown maps disconnect-class errors to nil.
func teardown(err error) error {
	if err == nil || isDisconnect(err) {
		return nil
	}
	return err
}

func isDisconnect(err error) bool {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
