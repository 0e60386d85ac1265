// Package domain defines the core data types and error taxonomy shared
// across the certificate, relay, config-proxy, and orchestrator layers.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries. Callers should use [errors.Is] to match these.
var (
	// ErrPersistence indicates the CA or settings files could not be
	// read or written under the app-data directory.
	ErrPersistence = errors.New("persistence error")

	// ErrPermissionDenied indicates trust-store enrollment was refused
	// by the user or the OS.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUpstreamUnavailable indicates the real Riot config API could
	// not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrTLSHandshakeFailure indicates a per-session TLS handshake
	// failed; the relay continues serving other sessions.
	ErrTLSHandshakeFailure = errors.New("tls handshake failure")

	// ErrProtocolFraming indicates the stanza framer saw unrecoverable
	// malformed XML (nesting depth beyond the sanity bound).
	ErrProtocolFraming = errors.New("protocol framing error")

	// ErrLauncherNotInstalled indicates no Riot Client executable could
	// be found on this machine.
	ErrLauncherNotInstalled = errors.New("launcher not installed")

	// ErrLauncherSpawnFailed indicates the launcher process failed to
	// start.
	ErrLauncherSpawnFailed = errors.New("launcher spawn failed")

	// ErrTrustRequired indicates the root CA is not yet trusted by the
	// OS and a launch was refused.
	ErrTrustRequired = errors.New("trust required")
)

// RelayError wraps an underlying error with relay-session context.
type RelayError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *RelayError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("relay session %s: %s: %v", e.SessionID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}
