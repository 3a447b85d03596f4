// Package trust holds the ICP-Brasil certificate roots used to validate the
// signer of a fiscal XML, plus OCSP revocation checks.
package trust

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUntrusted is returned when a certificate does not chain to a configured root
var ErrUntrusted = errors.New("certificate not trusted")

// Store manages trusted CA certificates and revocation checking
type Store struct {
	roots     *x509.CertPool
	rootCerts []*x509.Certificate
	inter     *x509.CertPool
	ocsp      *OCSPChecker
	softFail  bool
}

// Option configures a Store
type Option func(*Store)

// WithSoftFail makes OCSP transport failures non-fatal
func WithSoftFail() Option {
	return func(s *Store) {
		s.softFail = true
	}
}

// WithOCSPChecker replaces the default OCSP checker
func WithOCSPChecker(c *OCSPChecker) Option {
	return func(s *Store) {
		s.ocsp = c
	}
}

// NewStore creates an empty trust store
func NewStore(opts ...Option) *Store {
	s := &Store{
		roots: x509.NewCertPool(),
		inter: x509.NewCertPool(),
		ocsp:  NewOCSPChecker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load builds a store from a PEM file or a directory of .pem/.crt/.cer files.
// Self-signed certificates become roots, the rest intermediates.
func Load(path string, opts ...Option) (*Store, error) {
	s := NewStore(opts...)
	if path == "" {
		return s, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("trust store %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("trust store %s: %w", path, err)
		}
		files = files[:0]
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".pem", ".crt", ".cer":
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		if err := s.AddPEM(data); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
	}
	return s, nil
}

// AddCertificate adds a root, or an intermediate when the certificate is not self-signed
func (s *Store) AddCertificate(cert *x509.Certificate) {
	if cert == nil {
		return
	}
	if isSelfSigned(cert) {
		s.roots.AddCert(cert)
		s.rootCerts = append(s.rootCerts, cert)
		return
	}
	s.inter.AddCert(cert)
}

// AddPEM parses and adds every CERTIFICATE block
func (s *Store) AddPEM(data []byte) error {
	var added int
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		data = rest
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parse certificate: %w", err)
		}
		s.AddCertificate(cert)
		added++
	}
	if added == 0 {
		return errors.New("no certificates found in PEM data")
	}
	return nil
}

// Empty reports whether no root is configured
func (s *Store) Empty() bool {
	return len(s.rootCerts) == 0
}

// RootCerts returns the configured roots
func (s *Store) RootCerts() []*x509.Certificate {
	return s.rootCerts
}

// SoftFail reports whether OCSP transport failures are tolerated
func (s *Store) SoftFail() bool {
	return s.softFail
}

// VerifyChain verifies cert against the roots as of at. extra holds
// intermediates shipped with the document.
func (s *Store) VerifyChain(cert *x509.Certificate, extra []*x509.Certificate, at time.Time) ([]*x509.Certificate, error) {
	if cert == nil {
		return nil, errors.New("certificate is nil")
	}
	if s.Empty() {
		return nil, fmt.Errorf("%w: no roots configured", ErrUntrusted)
	}

	inter := s.inter.Clone()
	for _, c := range extra {
		inter.AddCert(c)
	}
	if at.IsZero() {
		at = time.Now()
	}

	chains, err := cert.Verify(x509.VerifyOptions{
		Roots:         s.roots,
		Intermediates: inter,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrusted, err)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("%w: no chain", ErrUntrusted)
	}
	return chains[0], nil
}

// CheckRevocation reports whether cert is still good according to its OCSP responder.
// Certificates without a responder URL are treated as good.
func (s *Store) CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate) (bool, error) {
	if cert == nil || issuer == nil {
		return false, errors.New("certificate or issuer is nil")
	}
	if len(cert.OCSPServer) == 0 {
		return true, nil
	}

	revoked, err := s.ocsp.Check(ctx, cert, issuer)
	if err != nil {
		if s.softFail {
			return true, fmt.Errorf("ocsp (soft-fail): %w", err)
		}
		return false, fmt.Errorf("ocsp: %w", err)
	}
	return !revoked, nil
}

func isSelfSigned(cert *x509.Certificate) bool {
	return cert.CheckSignatureFrom(cert) == nil
}
