package proxy

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	txsocks5 "github.com/txthinking/socks5"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/die-net/socksniff/internal/blocklist"
	"github.com/die-net/socksniff/internal/dialer"
	"github.com/die-net/socksniff/internal/testutil"
)

// countingDialer counts dials and closes of the connections it returns.
type countingDialer struct {
	d      dialer.Dialer
	dials  atomic.Int64
	closes atomic.Int64
}

func newCountingDialer(t *testing.T) *countingDialer {
	t.Helper()
	d, err := dialer.NewDirectDialer(dialer.Config{DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return &countingDialer{d: d}
}

func (c *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	c.dials.Inc()
	conn, err := c.d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: conn, closes: &c.closes}, nil
}

type countingConn struct {
	net.Conn
	closes *atomic.Int64
}

func (c *countingConn) Close() error {
	c.closes.Inc()
	return c.Conn.Close()
}

func startServer(t *testing.T, cfg Config) (string, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	cfg.Logger = zap.New(core)
	if cfg.BlockList == nil {
		cfg.BlockList = blocklist.New(nil, nil)
	}

	ln, err := ListenTCP("tcp", "127.0.0.1:0", ListenConfig{KeepAlive: net.KeepAliveConfig{Enable: false}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewSOCKS5Server(ctx, cfg)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	return ln.Addr().String(), logs
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ipv4Request(t *testing.T, addr string) []byte {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	req := []byte{0x05, 0x01, 0x00, 0x01}
	req = append(req, net.ParseIP(host).To4()...)
	return binary.BigEndian.AppendUint16(req, uint16(port))
}

// dialRaw connects to the proxy and completes the greeting.
func dialRaw(t *testing.T, proxyAddr string) net.Conn {
	t.Helper()

	c, err := net.Dial("tcp", proxyAddr)
	if err != nil {
		t.Fatal(err)
	}
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := c.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatal(err)
	}
	reply := make([]byte, 2)
	if _, err := io.ReadFull(c, reply); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(reply, []byte{0x05, 0x00}) {
		t.Fatalf("negotiation reply %x", reply)
	}
	return c
}

// assertClosedWithoutReply checks the proxy closes c without sending
// anything more.
func assertClosedWithoutReply(t *testing.T, c net.Conn) {
	t.Helper()
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected close with no reply, got %x err=%v", buf[:n], err)
	}
}

func TestSOCKS5ConnectDirect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	cd := newCountingDialer(t)
	addr, logs := startServer(t, Config{Dialer: cd})

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))

	rep, err := testutil.SOCKS5Connect(c, echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Atyp != txsocks5.ATYPIPv4 || !net.IP(rep.BndAddr).Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("reply echoed %d %v", rep.Atyp, rep.BndAddr)
	}

	testutil.AssertEcho(t, c, c, []byte("hello"))
	testutil.AssertEcho(t, c, c, []byte("world"))
	_ = c.Close()

	waitFor(t, "upstream close", func() bool { return cd.closes.Load() == 1 })
	waitFor(t, "session close", func() bool { return logs.FilterMessage("session closed").Len() == 1 })
	if n := cd.closes.Load(); n != 1 {
		t.Fatalf("upstream closed %d times", n)
	}
	if n := logs.FilterLevelExact(zap.WarnLevel).Len(); n != 0 {
		t.Fatalf("got %d warnings", n)
	}
}

func TestSOCKS5ConnectDomain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()
	_, port, _ := net.SplitHostPort(echoLn.Addr().String())

	addr, _ := startServer(t, Config{Dialer: newCountingDialer(t)})

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))

	rep, err := testutil.SOCKS5Connect(c, net.JoinHostPort("localhost", port))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Atyp != txsocks5.ATYPDomain || !bytes.HasSuffix(rep.BndAddr, []byte("localhost")) {
		t.Fatalf("reply echoed %d %q", rep.Atyp, rep.BndAddr)
	}

	testutil.AssertEcho(t, c, c, []byte("by name"))
}

func TestSOCKS5FragmentedHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	addr, _ := startServer(t, Config{Dialer: newCountingDialer(t)})

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))

	writeBytewise := func(p []byte) {
		for i := range p {
			if _, err := c.Write(p[i : i+1]); err != nil {
				t.Fatal(err)
			}
			time.Sleep(time.Millisecond)
		}
	}

	writeBytewise([]byte{0x05, 0x02, 0x00, 0x01})
	reply := make([]byte, 2)
	if _, err := io.ReadFull(c, reply); err != nil {
		t.Fatal(err)
	}

	req := ipv4Request(t, echoLn.Addr().String())
	writeBytewise(req)

	want := append([]byte{0x05, 0x00}, req[2:]...)
	got := make([]byte, len(want))
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("reply %x want %x", got, want)
	}

	testutil.AssertEcho(t, c, c, []byte("fragmented"))
}

func TestSOCKS5Rejects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()
	_, echoPort, _ := net.SplitHostPort(echoLn.Addr().String())
	port, err := strconv.Atoi(echoPort)
	if err != nil {
		t.Fatal(err)
	}
	portBytes := binary.BigEndian.AppendUint16(nil, uint16(port))

	tests := []struct {
		name    string
		request []byte
		reason  string
	}{
		{
			name:    "unknown address type",
			request: []byte{0x05, 0x01, 0x00, 0x02, 0x7F, 0x00, 0x00, 0x01, 0x1F, 0x90},
			reason:  "unknown address type",
		},
		{
			name:    "blocked host",
			request: ipv4Request(t, net.JoinHostPort("0.0.0.0", echoPort)),
			reason:  "host blocked",
		},
		{
			name:    "port zero",
			request: []byte{0x05, 0x01, 0x00, 0x01, 0x7F, 0x00, 0x00, 0x01, 0x00, 0x00},
			reason:  "host blocked",
		},
		{
			// An empty host would dial the proxy's own machine.
			name:    "empty domain",
			request: append([]byte{0x05, 0x01, 0x00, 0x03, 0x00}, portBytes...),
			reason:  "host blocked",
		},
		{
			name:    "unspecified ipv6",
			request: append(append([]byte{0x05, 0x01, 0x00, 0x04}, net.IPv6unspecified...), portBytes...),
			reason:  "host blocked",
		},
		{
			name:    "configured block",
			request: append([]byte{0x05, 0x01, 0x00, 0x03, 0x0B}, append([]byte("ads.example"), 0x00, 0x50)...),
			reason:  "host blocked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd := newCountingDialer(t)
			addr, logs := startServer(t, Config{
				Dialer:    cd,
				BlockList: blocklist.New([]string{"ads.example"}, nil),
			})

			c := dialRaw(t, addr)
			defer c.Close()

			if _, err := c.Write(tt.request); err != nil {
				t.Fatal(err)
			}
			assertClosedWithoutReply(t, c)

			waitFor(t, "protocol error log", func() bool { return logs.FilterMessage("protocol error").Len() == 1 })
			entry := logs.FilterMessage("protocol error").All()[0]
			if got := entry.ContextMap()["error"]; got != "socks5: "+tt.reason {
				t.Fatalf("logged error %v", got)
			}
			if n := cd.dials.Load(); n != 0 {
				t.Fatalf("dialed upstream %d times", n)
			}
		})
	}
}

func TestSOCKS5BadVersion(t *testing.T) {
	cd := newCountingDialer(t)
	addr, logs := startServer(t, Config{Dialer: cd})

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := c.Write([]byte{0x04, 0x01, 0x00}); err != nil {
		t.Fatal(err)
	}
	assertClosedWithoutReply(t, c)

	waitFor(t, "protocol error log", func() bool { return logs.FilterMessage("protocol error").Len() == 1 })
	if n := cd.dials.Load(); n != 0 {
		t.Fatalf("dialed upstream %d times", n)
	}
}

func TestSOCKS5ConnectFailureSendsNoReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cd := newCountingDialer(t)
	addr, logs := startServer(t, Config{Dialer: cd})

	c := dialRaw(t, addr)
	defer c.Close()

	if _, err := c.Write(ipv4Request(t, testutil.ClosedTCPAddr(t, ctx))); err != nil {
		t.Fatal(err)
	}
	assertClosedWithoutReply(t, c)

	waitFor(t, "connection error log", func() bool { return logs.FilterMessage("connection error").Len() == 1 })
	if n := logs.FilterMessage("protocol error").Len(); n != 0 {
		t.Fatalf("connect failure logged as protocol error")
	}
	if n := cd.dials.Load(); n != 1 {
		t.Fatalf("dialed upstream %d times", n)
	}
}

func TestSOCKS5SniffPassesBytesThrough(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		b, _ := io.ReadAll(c)
		received <- b
	})
	defer waitUp()

	cd := newCountingDialer(t)
	addr, logs := startServer(t, Config{
		Dialer:       cd,
		Sniff:        true,
		SniffTimeout: 2 * time.Second,
	})

	c := dialRaw(t, addr)
	defer c.Close()

	req := ipv4Request(t, upLn.Addr().String())
	payload := append(append(append([]byte{}, testutil.AlertRecord...), testutil.ClientHelloRecord("foo.example")...), "tail"...)

	// The request and the first TLS bytes arrive together.
	if _, err := c.Write(append(append([]byte{}, req...), payload[:3]...)); err != nil {
		t.Fatal(err)
	}
	reply := make([]byte, len(req))
	if _, err := io.ReadFull(c, reply); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Write(payload[3:]); err != nil {
		t.Fatal(err)
	}
	if err := c.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, payload) {
			t.Fatalf("upstream got %x\nwant %x", got, payload)
		}
	case <-ctx.Done():
		t.Fatal("upstream never received the payload")
	}

	waitFor(t, "client hello log", func() bool { return logs.FilterMessage("tls client hello").Len() == 1 })
	fields := logs.FilterMessage("tls client hello").All()[0].ContextMap()
	want := map[string]any{
		"sni":            "foo.example",
		"tls_version":    "TLS 1.2",
		"record_version": "TLS 1.0",
		"session_id":     hex.EncodeToString(testutil.HelloSessionID),
		"compression":    "00",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Fatalf("logged %s=%v want %v (all: %v)", k, fields[k], v, fields)
		}
	}
	if exts, ok := fields["extensions"].([]any); !ok || len(exts) != 2 {
		t.Fatalf("logged extensions %#v", fields["extensions"])
	}
	waitFor(t, "upstream close", func() bool { return cd.closes.Load() == 1 })
}

func TestSOCKS5SniffNonTLS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	addr, logs := startServer(t, Config{
		Dialer:       newCountingDialer(t),
		Sniff:        true,
		SniffTimeout: 2 * time.Second,
	})

	c := dialRaw(t, addr)
	defer c.Close()

	req := ipv4Request(t, echoLn.Addr().String())
	if _, err := c.Write(req); err != nil {
		t.Fatal(err)
	}
	reply := make([]byte, len(req))
	if _, err := io.ReadFull(c, reply); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEcho(t, c, c, []byte("GET / HTTP/1.1\r\n\r\n"))
	if n := logs.FilterMessage("tls client hello").Len(); n != 0 {
		t.Fatalf("logged %d client hellos for plain text", n)
	}
}

func TestSOCKS5ServeStopsOnShutdown(t *testing.T) {
	ln, err := ListenTCP("tcp", "127.0.0.1:0", ListenConfig{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewSOCKS5Server(ctx, Config{Dialer: newCountingDialer(t)})
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	// A client stuck in the greeting is torn down by shutdown.
	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	waitFor(t, "accept", func() bool { return srv.Accepted() == 1 })

	cancel()
	_ = ln.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	assertClosedWithoutReply(t, c)
}
