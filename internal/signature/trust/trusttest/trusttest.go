// Package trusttest issues throwaway certificate chains for signature tests.
package trusttest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var serial atomic.Int64

// CA is a self-signed certificate authority
type CA struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// Leaf is a certificate issued by a CA together with its key
type Leaf struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// LeafOption adjusts the template of an issued certificate
type LeafOption func(*x509.Certificate)

// ValidBetween sets the validity window
func ValidBetween(from, to time.Time) LeafOption {
	return func(c *x509.Certificate) {
		c.NotBefore = from
		c.NotAfter = to
	}
}

// WithOCSPServer sets the responder URL embedded in the certificate
func WithOCSPServer(url string) LeafOption {
	return func(c *x509.Certificate) {
		c.OCSPServer = []string{url}
	}
}

// NewCA creates a root valid for one day around now
func NewCA(t testing.TB, cn string) *CA {
	t.Helper()
	key := newKey(t)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial.Add(1)),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"ICP-Brasil"}},
		NotBefore:             time.Now().Add(-24 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &CA{Cert: cert, Key: key}
}

// Issue signs an end-entity certificate. ICP-Brasil e-CNPJ subjects end with ":<cnpj>".
func (ca *CA) Issue(t testing.TB, cn string, opts ...LeafOption) *Leaf {
	t.Helper()
	key := newKey(t)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial.Add(1)),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	for _, opt := range opts {
		opt(tmpl)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.Cert, &key.PublicKey, ca.Key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &Leaf{Cert: cert, Key: key}
}

// PEM encodes certificates as CERTIFICATE blocks
func PEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}

func newKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// GetKeyPair lets a Leaf sign XML as a goxmldsig key store
func (l *Leaf) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	return l.Key, l.Cert.Raw, nil
}
