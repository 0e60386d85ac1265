// Package certs manages the locally-generated root certificate authority
// and the short-lived leaf certificates it signs for the relay and config
// endpoint TLS listeners.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/mvacoimbra/where-is-teemo/internal/appdata"
	"github.com/mvacoimbra/where-is-teemo/internal/domain"
)

const (
	// CACommonName is the subject common name of the locally-generated
	// root CA, matched by the trust-store adapter when checking install
	// state.
	CACommonName = "Where Is Teemo Local CA"

	caValidity   = 5 * 365 * 24 * time.Hour
	leafValidity = 397 * 24 * time.Hour

	caCertFile = "ca.pem"
	caKeyFile  = "ca.key"
)

// Authority holds a persistent root CA and signs leaf certificates from
// it. A zero Authority is not usable; construct one with [Ensure] or
// [Load].
type Authority struct {
	mu      sync.Mutex
	dir     string
	certPEM []byte
	keyPEM  []byte
	cert    *x509.Certificate
	key     *ecdsa.PrivateKey

	// generatedThisRun reports whether Ensure generated and persisted a
	// fresh CA, as opposed to reading an existing one from disk.
	generatedThisRun bool

	// leafIssued reports whether SignLeaf has produced at least one
	// leaf certificate this run, for CertStatus.ServerGenerated.
	leafIssued bool
}

// Ensure loads the CA cert and key from dir, generating and persisting a
// new self-signed CA if either file is missing. dir is typically the
// directory returned by [appdata.Dir]; ca.pem and ca.key sit directly in it.
func Ensure(dir string) (*Authority, error) {
	certPath := filepath.Join(dir, caCertFile)
	keyPath := filepath.Join(dir, caKeyFile)

	certPEM, certOK, err := appdata.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, keyOK, err := appdata.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	if certOK && keyOK {
		a, err := load(dir, certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	a, err := generate(dir)
	if err != nil {
		return nil, err
	}
	if err := appdata.WriteFile(certPath, a.certPEM); err != nil {
		return nil, err
	}
	if err := appdata.WriteFile(keyPath, a.keyPEM); err != nil {
		return nil, err
	}
	a.generatedThisRun = true
	return a, nil
}

func load(dir string, certPEM, keyPEM []byte) (*Authority, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: ca.pem is not valid PEM", domain.ErrPersistence)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse ca cert: %v", domain.ErrPersistence, err)
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("%w: ca.key is not valid PEM", domain.ErrPersistence)
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse ca key: %v", domain.ErrPersistence, err)
	}
	return &Authority{
		dir:     dir,
		certPEM: certPEM,
		keyPEM:  keyPEM,
		cert:    cert,
		key:     key,
	}, nil
}

func generate(dir string) (*Authority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ca key: %v", domain.ErrPersistence, err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   CACommonName,
			Organization: []string{"Where Is Teemo"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("%w: self-sign ca: %v", domain.ErrPersistence, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal ca key: %v", domain.ErrPersistence, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse generated ca cert: %v", domain.ErrPersistence, err)
	}

	return &Authority{
		dir:     dir,
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		cert:    cert,
		key:     key,
	}, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: generate serial: %v", domain.ErrPersistence, err)
	}
	return serial, nil
}

// CACertificatePEM returns the PEM-encoded CA certificate, for trust-store
// enrollment.
func (a *Authority) CACertificatePEM() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.certPEM
}

// Certificate returns the parsed CA certificate.
func (a *Authority) Certificate() *x509.Certificate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cert
}

// GeneratedThisRun reports whether Ensure generated a fresh CA rather than
// loading one from disk.
func (a *Authority) GeneratedThisRun() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generatedThisRun
}

// LeafIssued reports whether SignLeaf has produced at least one server
// leaf certificate during this process's lifetime.
func (a *Authority) LeafIssued() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leafIssued
}

// LeafCert is a signed server certificate plus its usable tls.Certificate
// form.
type LeafCert struct {
	CertPEM     []byte
	KeyPEM      []byte
	Certificate tls.Certificate
}

// SignLeaf produces a leaf certificate signed by the CA whose SAN
// extension contains exactly the given hostnames and IP literals, valid
// for TLS server auth.
func (a *Authority) SignLeaf(sans []string) (*LeafCert, error) {
	a.mu.Lock()
	caCert, caKey := a.cert, a.key
	a.mu.Unlock()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate leaf key: %v", domain.ErrPersistence, err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	notAfter := now.Add(leafValidity)
	if caNotAfter := caCert.NotAfter; notAfter.After(caNotAfter) {
		notAfter = caNotAfter
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "Where Is Teemo Proxy",
		},
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, san := range sans {
		if ip := net.ParseIP(san); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, san)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sign leaf: %v", domain.ErrPersistence, err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal leaf key: %v", domain.ErrPersistence, err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: build tls leaf: %v", domain.ErrPersistence, err)
	}
	tlsCert.Leaf, err = x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse tls leaf: %v", domain.ErrPersistence, err)
	}

	a.mu.Lock()
	a.leafIssued = true
	a.mu.Unlock()

	return &LeafCert{CertPEM: certPEM, KeyPEM: keyPEM, Certificate: tlsCert}, nil
}
