package relay

import (
	"bytes"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mvacoimbra/where-is-teemo/internal/certs"
	"github.com/mvacoimbra/where-is-teemo/internal/domain"
	"github.com/mvacoimbra/where-is-teemo/internal/modebus"
	"github.com/mvacoimbra/where-is-teemo/internal/region"
)

// fakeUpstream stands in for the real chat host: it accepts one TLS
// connection, records everything it reads, and writes back a fixed
// payload so the test can also verify the server→client passthrough
// direction.
type fakeUpstream struct {
	ln       net.Listener
	received chan []byte
}

func startFakeUpstream(t *testing.T, authority *certs.Authority) *fakeUpstream {
	t.Helper()
	leaf, err := authority.SignLeaf([]string{"fake-upstream"})
	if err != nil {
		t.Fatalf("sign fake upstream leaf: %v", err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{leaf.Certificate}})
	if err != nil {
		t.Fatalf("listen fake upstream: %v", err)
	}

	f := &fakeUpstream{ln: ln, received: make(chan []byte, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		got := readAllWithTimeout(conn, 500*time.Millisecond)
		f.received <- got
		_, _ = conn.Write([]byte(`<presence from="server@upstream"/>`))
		// Keep the connection open briefly so the client side has time
		// to read the passthrough write before the test tears down.
		time.Sleep(200 * time.Millisecond)
	}()
	return f
}

func readAllWithTimeout(conn net.Conn, timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	var buf bytes.Buffer
	tmp := make([]byte, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := conn.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			if time.Now().After(deadline) {
				return buf.Bytes()
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return buf.Bytes()
		}
	}
}

func newTestRelay(t *testing.T) (*Relay, *certs.Authority, *region.Registry, *modebus.Bus, *fakeUpstream) {
	t.Helper()
	dir := t.TempDir()
	authority, err := certs.Ensure(dir)
	if err != nil {
		t.Fatalf("certs.Ensure: %v", err)
	}

	reg := region.New()
	reg.Observe("na2.chat.si.riotgames.com")

	upstream := startFakeUpstream(t, authority)

	mode := modebus.New(domain.ModeInvisible)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := New("127.0.0.1:0", authority, reg, mode, log)
	r.dialUpstream = func(host string, port int) (*tls.Conn, error) {
		return tls.Dial("tcp", upstream.ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	}

	return r, authority, reg, mode, upstream
}

func TestRelayRewritesPresenceToUpstream(t *testing.T) {
	t.Parallel()

	r, _, _, _, upstream := newTestRelay(t)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	clientConn, err := tls.Dial("tcp", r.ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer clientConn.Close()

	payload := `<stream:stream to="na2.chat.si.riotgames.com">` +
		`<presence from="me@x" to="them@x" id="1"><show>chat</show></presence>`
	if _, err := clientConn.Write([]byte(payload)); err != nil {
		t.Fatalf("write to relay: %v", err)
	}

	got := <-upstream.received
	want := `<presence from="me@x" to="them@x" id="1" type="unavailable"/>`
	if !bytes.Contains(got, []byte(want)) {
		t.Fatalf("upstream received %q, want it to contain %q", got, want)
	}
	if bytes.Contains(got, []byte("<show>")) {
		t.Fatalf("upstream received %q, want child elements stripped", got)
	}
}

func TestRelayReassertsPresenceOnModeFlipToOnline(t *testing.T) {
	t.Parallel()

	r, _, _, mode, upstream := newTestRelay(t)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	clientConn, err := tls.Dial("tcp", r.ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer clientConn.Close()

	original := `<presence from="me@x" to="them@x" id="1"><show>chat</show></presence>`
	if _, err := clientConn.Write([]byte(original)); err != nil {
		t.Fatalf("write to relay: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	mode.Set(domain.ModeOnline)

	got := <-upstream.received
	if !bytes.Contains(got, []byte(`type="unavailable"`)) {
		t.Fatalf("upstream received %q, want the original stripped send first", got)
	}
	if !bytes.Contains(got, []byte(original)) {
		t.Fatalf("upstream received %q, want the real presence re-asserted after the flip to Online", got)
	}
}

func TestRelayPassesServerBytesThroughUnmodified(t *testing.T) {
	t.Parallel()

	r, _, _, _, _ := newTestRelay(t)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	clientConn, err := tls.Dial("tcp", r.ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte(`<stream:stream>`)); err != nil {
		t.Fatalf("write to relay: %v", err)
	}

	got := readAllWithTimeout(clientConn, 800*time.Millisecond)
	want := `<presence from="server@upstream"/>`
	if !bytes.Contains(got, []byte(want)) {
		t.Fatalf("client received %q, want it to contain %q", got, want)
	}
}

func TestRelayRejectsConnectionWithNoEffectiveRegion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	authority, err := certs.Ensure(dir)
	if err != nil {
		t.Fatalf("certs.Ensure: %v", err)
	}
	reg := region.New() // no observation, no override
	mode := modebus.New(domain.ModeInvisible)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := New("127.0.0.1:0", authority, reg, mode, log)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	clientConn, err := net.Dial("tcp", r.ln.Addr().String())
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer clientConn.Close()

	_ = clientConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 16)
	_, err = clientConn.Read(buf)
	if err == nil {
		t.Fatal("expected connection to be closed with no effective region")
	}
}
