// Package relay implements the XMPP-over-TLS man in the middle: it
// terminates the game client's TLS connection on 127.0.0.1:5223,
// opens its own TLS connection to the real chat host, and forwards
// bytes between them, rewriting outbound presence stanzas to whatever
// the current stealth mode demands.
package relay

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/mvacoimbra/where-is-teemo/internal/certs"
	"github.com/mvacoimbra/where-is-teemo/internal/domain"
	"github.com/mvacoimbra/where-is-teemo/internal/modebus"
	"github.com/mvacoimbra/where-is-teemo/internal/region"
	"github.com/mvacoimbra/where-is-teemo/internal/xmpp"
)

// bufSize is the read buffer used for the passthrough direction.
const bufSize = 8192

// Relay listens on a fixed loopback TLS port and relays XMPP sessions
// to the currently effective chat host.
type Relay struct {
	listenAddr string
	authority  *certs.Authority
	region     *region.Registry
	mode       *modebus.Bus
	log        *slog.Logger

	// OnError is the orchestrator's hook for global relay errors.
	// Nothing in Relay calls it: a listener bind failure is returned by
	// Start, and accept and per-session errors are only logged.
	OnError func(error)

	mu       sync.Mutex
	ln       net.Listener
	sessions map[string]*session
	wg       sync.WaitGroup

	// dialUpstream opens the TLS connection to the real chat host. It
	// is a field rather than an inline call so tests can substitute a
	// local fake chat server without touching DNS.
	dialUpstream func(host string, port int) (*tls.Conn, error)
}

// New returns a Relay bound to listenAddr, relaying to whatever host
// reg currently resolves as effective and rewriting presence per
// mode's current value.
func New(listenAddr string, authority *certs.Authority, reg *region.Registry, mode *modebus.Bus, log *slog.Logger) *Relay {
	return &Relay{
		listenAddr:   listenAddr,
		authority:    authority,
		region:       reg,
		mode:         mode,
		log:          log,
		sessions:     make(map[string]*session),
		dialUpstream: dialUpstreamTLS,
	}
}

// dialUpstreamTLS connects to the real chat host with standard
// certificate verification against the system trust store and SNI set
// to the real FQDN.
func dialUpstreamTLS(host string, port int) (*tls.Conn, error) {
	return tls.Dial("tcp", fmt.Sprintf("%s:%d", host, port), &tls.Config{ServerName: host})
}

// Start binds the listener and begins accepting sessions in the
// background.
func (r *Relay) Start() error {
	ln, err := net.Listen("tcp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", r.listenAddr, err)
	}
	r.mu.Lock()
	r.ln = ln
	r.mu.Unlock()

	r.log.Info("xmpp relay listening", "addr", r.listenAddr)

	r.wg.Add(1)
	go r.acceptLoop(ln)
	return nil
}

// Stop closes the listener and every live session, then waits for
// in-flight forwarding goroutines to drain.
func (r *Relay) Stop() {
	r.mu.Lock()
	ln := r.ln
	r.ln = nil
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, s := range sessions {
		s.close()
	}
	r.wg.Wait()
}

func (r *Relay) acceptLoop(ln net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("relay accept failed", "err", err)
			continue
		}
		r.wg.Add(1)
		go r.handleConn(conn)
	}
}

func (r *Relay) handleConn(raw net.Conn) {
	defer r.wg.Done()

	sessionID := uuid.NewString()
	log := r.log.With("session", sessionID, "remote", raw.RemoteAddr().String())

	eff, ok := r.region.Effective()
	if !ok {
		log.Warn("relay accepted connection with no effective region yet; closing")
		_ = raw.Close()
		return
	}

	leaf, err := r.authority.SignLeaf([]string{"127.0.0.1", "localhost", eff.ChatHostFQDN})
	if err != nil {
		log.Error("relay failed to sign session leaf cert", "err", err)
		_ = raw.Close()
		return
	}

	clientConn := tls.Server(raw, &tls.Config{Certificates: []tls.Certificate{leaf.Certificate}})
	if err := clientConn.Handshake(); err != nil {
		log.Warn("relay client tls handshake failed", "err", fmt.Errorf("%w: %v", domain.ErrTLSHandshakeFailure, err))
		_ = clientConn.Close()
		return
	}

	upstreamConn, err := r.dialUpstream(eff.ChatHostFQDN, region.ChatPort)
	if err != nil {
		log.Warn("relay upstream tls connect failed", "host", eff.ChatHostFQDN, "err", err)
		_ = clientConn.Close()
		return
	}

	log.Info("relay session established", "upstream", eff.ChatHostFQDN)

	sess := newSession(sessionID, clientConn, upstreamConn)
	r.addSession(sess)
	defer r.removeSession(sessionID)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		sess.forwardServerToClient(log)
	}()
	go func() {
		defer wg.Done()
		sess.forwardClientToServer(log, r.mode)
	}()
	go func() {
		defer wg.Done()
		sess.watchModeFlip(log, r.mode)
	}()
	wg.Wait()
	log.Info("relay session closed")
}

func (r *Relay) addSession(s *session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
}

func (r *Relay) removeSession(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// session owns one accepted TLS connection and its matching upstream
// TLS connection.
type session struct {
	id        string
	client    *tls.Conn
	upstream  *tls.Conn
	closeOnce sync.Once
	closed    atomic.Bool
	closeCh   chan struct{}

	// upstreamMu serializes writes to upstream between the normal
	// client->server forwarding loop and watchModeFlip's out-of-band
	// re-assertion write so a direction's frames never interleave
	// mid-write.
	upstreamMu sync.Mutex

	// lastPresence caches the most recent presence frame's original,
	// unrewritten bytes, so that a mode flip back to Online can
	// re-assert the client's real presence immediately rather than
	// waiting for its next outbound stanza.
	lastPresenceMu sync.Mutex
	lastPresence   []byte
}

func newSession(id string, client, upstream *tls.Conn) *session {
	return &session{id: id, client: client, upstream: upstream, closeCh: make(chan struct{})}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.client.Close()
		_ = s.upstream.Close()
		close(s.closeCh)
	})
}

func (s *session) writeUpstream(b []byte) (int, error) {
	s.upstreamMu.Lock()
	defer s.upstreamMu.Unlock()
	return s.upstream.Write(b)
}

func (s *session) rememberPresence(raw []byte) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	s.lastPresenceMu.Lock()
	s.lastPresence = cp
	s.lastPresenceMu.Unlock()
}

func (s *session) takePresence() []byte {
	s.lastPresenceMu.Lock()
	defer s.lastPresenceMu.Unlock()
	return s.lastPresence
}

// watchModeFlip re-asserts the client's real presence the instant mode
// flips from Invisible back to Online, instead of waiting for the
// client to send another presence stanza on its own. It exits once the
// session closes.
func (s *session) watchModeFlip(log *slog.Logger, mode *modebus.Bus) {
	last := mode.Value()
	for {
		v := mode.Wait(last, s.closeCh)
		select {
		case <-s.closeCh:
			return
		default:
		}
		if last == domain.ModeInvisible && v == domain.ModeOnline {
			if cached := s.takePresence(); cached != nil {
				if _, err := s.writeUpstream(cached); err != nil {
					logForwardError(log, "write re-asserted presence failed", err)
					return
				}
			}
		}
		last = v
	}
}

// forwardServerToClient passes upstream bytes straight through with no
// parsing.
func (s *session) forwardServerToClient(log *slog.Logger) {
	defer s.close()
	buf := make([]byte, bufSize)
	for {
		n, err := s.upstream.Read(buf)
		if n > 0 {
			if _, werr := s.client.Write(buf[:n]); werr != nil {
				logForwardError(log, "write to client failed", werr)
				return
			}
		}
		if err != nil {
			if !isBenignCloseError(err) {
				logForwardError(log, "read from server failed", err)
			}
			return
		}
	}
}

// forwardClientToServer feeds client bytes through the framer and
// rewriter, consulting mode once per complete frame.
func (s *session) forwardClientToServer(log *slog.Logger, mode *modebus.Bus) {
	defer s.close()
	framer := xmpp.NewFramer()
	buf := make([]byte, bufSize)

	for {
		n, err := s.client.Read(buf)
		if n > 0 {
			frames, ferr := framer.Feed(buf[:n])
			if ferr != nil {
				log.Warn("relay protocol framing error; dropping session", "err", ferr)
				return
			}
			for _, frame := range frames {
				if frame.Kind == xmpp.KindPresence {
					s.rememberPresence(frame.Raw)
				}
				out, rerr := xmpp.RewritePresence(frame, mode.Value())
				if rerr != nil {
					log.Warn("relay presence rewrite error; dropping session", "err", rerr)
					return
				}
				if _, werr := s.writeUpstream(out); werr != nil {
					logForwardError(log, "write to upstream failed", werr)
					return
				}
			}
		}
		if err != nil {
			if !isBenignCloseError(err) {
				logForwardError(log, "read from client failed", err)
			}
			return
		}
	}
}

func logForwardError(log *slog.Logger, msg string, err error) {
	if isBenignCloseError(err) {
		return
	}
	log.Warn(msg, "err", err)
}

// isBenignCloseError reports whether err is an ordinary disconnect
// (EOF, reset, use-of-closed-connection) that should not be logged as
// a session failure.
func isBenignCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return false
	}
	return false
}
