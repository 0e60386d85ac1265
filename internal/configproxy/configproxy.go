// Package configproxy serves the local HTTPS endpoint the game launcher
// is redirected to for its bootstrap configuration, forwarding the
// request to the real Riot config API and rewriting every chat-host
// field in the JSON response to point back at this machine.
package configproxy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mvacoimbra/where-is-teemo/internal/certs"
	"github.com/mvacoimbra/where-is-teemo/internal/domain"
	"github.com/mvacoimbra/where-is-teemo/internal/netutil"
	"github.com/mvacoimbra/where-is-teemo/internal/region"
)

// upstreamTimeout bounds the total time spent waiting on the real Riot
// config API.
const upstreamTimeout = 10 * time.Second

// Proxy is the loopback HTTPS reverse proxy for the Riot client-config
// API.
type Proxy struct {
	listenAddr   string
	authority    *certs.Authority
	upstreamHost string
	chatPort     int
	region       *region.Registry
	log          *slog.Logger
	client       *http.Client

	// OnError, if set, is called when the server stops serving with an
	// error, when the upstream config API cannot be reached, and when
	// the upstream body is not valid JSON. A listener bind failure is
	// returned by Start instead, and an upstream timeout is only
	// reported in the HTTP response.
	OnError func(error)

	srv *http.Server
	ln  net.Listener
}

// New returns a Proxy bound to listenAddr that forwards to upstreamHost
// and rewrites the chat host/port to 127.0.0.1:chatPort, recording the
// real host it observed into reg. An empty listenAddr binds an
// ephemeral loopback port.
func New(listenAddr string, authority *certs.Authority, upstreamHost string, chatPort int, reg *region.Registry, log *slog.Logger) *Proxy {
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	}
	return &Proxy{
		listenAddr:   listenAddr,
		authority:    authority,
		upstreamHost: upstreamHost,
		chatPort:     chatPort,
		region:       reg,
		log:          log,
		client: &http.Client{
			Timeout: upstreamTimeout,
		},
	}
}

// Start binds the configured loopback TLS port and begins serving. It
// returns the URL the launcher should be pointed at
// (https://127.0.0.1:<port>).
func (p *Proxy) Start() (string, error) {
	leaf, err := p.authority.SignLeaf([]string{"127.0.0.1", "localhost"})
	if err != nil {
		return "", fmt.Errorf("config proxy: sign leaf: %w", err)
	}

	ln, err := net.Listen("tcp", p.listenAddr)
	if err != nil {
		return "", fmt.Errorf("config proxy: listen: %w", err)
	}
	tlsLn := tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{leaf.Certificate},
	})

	p.ln = tlsLn
	p.srv = &http.Server{
		Handler:  p,
		ErrorLog: slogErrorLog(p.log),
	}

	go func() {
		if err := p.srv.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
			if p.OnError != nil {
				p.OnError(fmt.Errorf("config proxy: serve: %w", err))
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	url := fmt.Sprintf("https://127.0.0.1:%d", addr.Port)
	p.log.Info("config proxy listening", "url", url, "upstream", p.upstreamHost)
	return url, nil
}

// Stop gracefully shuts the proxy down.
func (p *Proxy) Stop(ctx context.Context) error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Shutdown(ctx)
}

// ServeHTTP forwards req to the real config API and rewrites the
// chat-host fields in the JSON response before relaying it back.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	upstreamURL := url.URL{
		Scheme:   "https",
		Host:     p.upstreamHost,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		http.Error(w, "bad upstream request", http.StatusBadGateway)
		return
	}
	for k, vs := range r.Header {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			upstreamReq.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.log.Warn("config proxy upstream request timed out", "err", err, "path", r.URL.Path)
			http.Error(w, "upstream config API timed out", http.StatusGatewayTimeout)
			return
		}
		p.log.Warn("config proxy upstream request failed", "err", err, "path", r.URL.Path)
		if p.OnError != nil {
			p.OnError(fmt.Errorf("config proxy: %w: %v", domain.ErrUpstreamUnavailable, err))
		}
		http.Error(w, fmt.Sprintf("upstream error: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Warn("config proxy failed reading upstream body", "err", err)
		http.Error(w, fmt.Sprintf("body read error: %v", err), http.StatusBadGateway)
		return
	}

	outBody := p.rewriteBody(body)

	header := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	netutil.RemoveHopByHopHeaders(header)
	header.Set("Content-Length", strconv.Itoa(len(outBody)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(outBody)
}

// rewriteBody decodes body as JSON and rewrites every chat-host field
// it finds. On parse failure the body is forwarded unchanged.
func (p *Proxy) rewriteBody(body []byte) []byte {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		p.log.Warn("config proxy could not parse upstream body as JSON; forwarding unchanged", "err", err)
		if p.OnError != nil {
			p.OnError(fmt.Errorf("config proxy: decode upstream body: %w", err))
		}
		return body
	}

	rewriteJSONTree(doc, p.chatPort, p.region.Observe)

	if obj, ok := doc.(map[string]interface{}); ok {
		obj["chat.allow_bad_cert.enabled"] = true
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return body
	}
	return out
}

// rewriteJSONTree walks v in place, rewriting every chat-host-shaped
// key or URL value it finds. observe is called with the original value
// of every chat-host key and the host of every rewritten chat URL, so
// the region registry can track the effective region from observation;
// chat-affinity hosts are rewritten without being observed.
func rewriteJSONTree(v interface{}, chatPort int, observe func(string)) {
	switch node := v.(type) {
	case map[string]interface{}:
		for key, val := range node {
			lower := strings.ToLower(key)
			switch {
			case isChatHostKey(lower):
				if s, ok := val.(string); ok && s != "" {
					observe(netutil.NormalizeHost(s))
				}
				node[key] = "127.0.0.1"
			case isChatPortKey(lower):
				node[key] = chatPort
			case isChatAffinitiesKey(lower):
				if aff, ok := val.(map[string]interface{}); ok {
					for k := range aff {
						aff[k] = "127.0.0.1"
					}
				}
			default:
				if s, ok := val.(string); ok {
					if rewritten, host, isURL := rewriteIfChatURL(s, chatPort); isURL {
						observe(host)
						node[key] = rewritten
						continue
					}
				}
				rewriteJSONTree(val, chatPort, observe)
			}
		}
	case []interface{}:
		for _, item := range node {
			rewriteJSONTree(item, chatPort, observe)
		}
	}
}

func isChatHostKey(lower string) bool {
	return strings.Contains(lower, "chat") && (strings.Contains(lower, "host"))
}

func isChatPortKey(lower string) bool {
	return strings.Contains(lower, "chat") && strings.Contains(lower, "port")
}

func isChatAffinitiesKey(lower string) bool {
	return strings.Contains(lower, "chat") && strings.Contains(lower, "affinit")
}

// rewriteIfChatURL reports whether s is a full URL whose host looks
// like a Riot chat host (any of the known per-region FQDNs, or a host
// starting with one of their first labels, as region.LookupByHost
// matches it).
// If so it returns a copy of s with the host replaced by
// 127.0.0.1:chatPort.
func rewriteIfChatURL(s string, chatPort int) (rewritten string, originalHost string, isChatURL bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	host := netutil.NormalizeHost(u.Hostname())
	if _, ok := region.LookupByHost(host); !ok {
		return "", "", false
	}
	u.Host = fmt.Sprintf("127.0.0.1:%d", chatPort)
	return u.String(), host, true
}

// slogErrorLog lets http.Server log through slog instead of the
// standard log package.
func slogErrorLog(log *slog.Logger) *stdlog.Logger {
	return stdlog.New(&stdLogAdapter{log: log}, "", 0)
}

type stdLogAdapter struct {
	log *slog.Logger
}

func (a *stdLogAdapter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line != "" {
		a.log.Warn("config proxy http server error", "err", line)
	}
	return len(p), nil
}

var _ io.Writer = (*stdLogAdapter)(nil)
