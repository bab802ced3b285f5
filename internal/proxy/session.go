package proxy

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksniff/internal/socks5"
	"github.com/die-net/socksniff/internal/stream"
	"github.com/die-net/socksniff/internal/tlssniff"
)

// session is the state owned by one accepted connection.
type session struct {
	id      uint64
	conn    net.Conn
	in      *stream.Buffer
	state   socks5.State
	started time.Time
}

func newSession(id uint64, conn net.Conn) *session {
	return &session{
		id:      id,
		conn:    conn,
		in:      stream.NewBuffer(conn, stream.DefaultChunkSize),
		started: time.Now(),
	}
}

func (sess *session) elapsed() time.Duration {
	return time.Since(sess.started)
}

// fields describes the session for diagnostics.
func (sess *session) fields(extra ...zap.Field) []zap.Field {
	st := &sess.state
	return append([]zap.Field{
		zap.Uint64("id", sess.id),
		zap.Stringer("peer", sess.conn.RemoteAddr()),
		zap.Uint8("version", st.Version),
		zap.String("methods", hex.EncodeToString(st.Methods)),
		zap.Uint8("cmd", st.Command),
		zap.Uint8("atyp", st.AddrType),
		zap.String("host", st.Host),
		zap.Uint16("port", st.Port),
	}, extra...)
}

// handle runs the session pipeline:
// negotiate, request, validate, connect, [sniff], relay.
func (s *SOCKS5Server) handle(ctx context.Context, sess *session) error {
	defer sess.conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = sess.conn.Close() })
	defer stop()

	if s.cfg.NegotiationTimeout > 0 {
		_ = sess.conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	if err := socks5.Negotiate(sess.in, sess.conn, &sess.state); err != nil {
		return err
	}
	if err := socks5.ReadRequest(sess.in, &sess.state); err != nil {
		return err
	}
	if err := socks5.Validate(&sess.state, s.cfg.BlockList); err != nil {
		return err
	}

	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", sess.state.Address())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer up.Close()

	// No reply at all is sent unless the upstream connection is up.
	if _, err := sess.conn.Write(sess.state.Reply); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	if s.cfg.NegotiationTimeout > 0 {
		_ = sess.conn.SetDeadline(time.Time{})
	}

	if s.cfg.Sniff {
		s.sniff(sess)
	}

	if err := Relay(ctx, sess.conn, sess.in, up); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// sniff logs the client's TLS ClientHello, if it sends one. The bytes it
// reads are left in sess.in for the relay.
func (s *SOCKS5Server) sniff(sess *session) {
	if s.cfg.SniffTimeout > 0 {
		_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.SniffTimeout))
		defer func() { _ = sess.conn.SetReadDeadline(time.Time{}) }()
	}

	hello, err := tlssniff.Sniff(sess.in)
	if err != nil {
		s.log.Debug("tls sniff stopped", zap.Uint64("id", sess.id), zap.Error(err))
		return
	}
	if hello == nil {
		s.log.Debug("no tls client hello", zap.Uint64("id", sess.id), zap.Int("captured", sess.in.Len()))
		return
	}

	s.log.Info("tls client hello",
		zap.Uint64("id", sess.id),
		zap.Stringer("peer", sess.conn.RemoteAddr()),
		zap.String("target", sess.state.Address()),
		zap.String("record_version", tls.VersionName(hello.RecordVersion)),
		zap.String("tls_version", hello.VersionName()),
		zap.String("client_random", hex.EncodeToString(hello.Random[:])),
		zap.String("session_id", hex.EncodeToString(hello.SessionID)),
		zap.Strings("cipher_suites", hello.CipherSuiteNames()),
		zap.String("compression", hex.EncodeToString(hello.CompressionMethods)),
		zap.Uint16s("extensions", hello.Extensions),
		zap.String("sni", hello.ServerName),
	)
}
