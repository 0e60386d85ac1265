// Package truststore installs the locally-generated root CA into the OS
// trust store and reports whether it is currently trusted. Platform
// mechanics live in the _darwin/_windows/_other build-tagged files;
// this file holds the shared contract.
package truststore

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

// Adapter installs and queries the root CA in the current platform's
// trust store.
type Adapter struct{}

// New returns a platform Adapter.
func New() *Adapter {
	return &Adapter{}
}

// Enroll installs cert into the OS trust store. It is idempotent: if a
// certificate with a matching fingerprint is already present, Enroll is a
// no-op. It returns domain.ErrPermissionDenied if the user declines an
// elevation prompt.
func (a *Adapter) Enroll(cert *x509.Certificate, pemPath string) error {
	trusted, err := a.IsTrusted(cert)
	if err != nil {
		return err
	}
	if trusted {
		return nil
	}
	return enrollPlatform(pemPath)
}

// IsTrusted reports whether a certificate matching cert's fingerprint is
// currently present in the OS trust store.
func (a *Adapter) IsTrusted(cert *x509.Certificate) (bool, error) {
	return isTrustedPlatform(fingerprint(cert))
}

func fingerprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return hex.EncodeToString(sum[:])
}

func wrapPermissionDenied(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
}

func errWithOutput(err error, output []byte) error {
	out := strings.TrimSpace(string(output))
	if out == "" {
		return err
	}
	return fmt.Errorf("%v: %s", err, out)
}
