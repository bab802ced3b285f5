package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// SOCKS5Server accepts SOCKS5 clients and runs one session per connection.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log *zap.Logger

	// ids numbers accepted connections for diagnostics.
	ids atomic.Uint64
}

// NewSOCKS5Server returns a server that runs sessions under ctx. Cancelling
// ctx tears down in-flight sessions.
func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: log}
}

// Serve accepts connections on ln until it is closed. It returns nil if ln
// was closed because the server context is done.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) && s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		sess := newSession(s.ids.Inc(), c)
		go func() {
			s.report(sess, s.handle(s.ctx, sess))
		}()
	}
}

// Accepted returns the number of connections accepted so far.
func (s *SOCKS5Server) Accepted() uint64 {
	return s.ids.Load()
}

// report logs the outcome of a finished session.
func (s *SOCKS5Server) report(sess *session, err error) {
	switch classify(err) {
	case classProtocol:
		s.log.Warn("protocol error", sess.fields(zap.Error(err))...)
	case classTransient:
		lvl := zap.DebugLevel
		if s.cfg.Verbose {
			lvl = zap.InfoLevel
		}
		if ce := s.log.Check(lvl, "connection error"); ce != nil {
			ce.Write(sess.fields(zap.Error(err))...)
		}
	}

	if ce := s.log.Check(zap.DebugLevel, "session closed"); ce != nil {
		ce.Write(zap.Uint64("id", sess.id), zap.Duration("elapsed", sess.elapsed()))
	}
}
