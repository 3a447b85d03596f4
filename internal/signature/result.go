package signature

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
)

// Result reports each verification check separately. Valid is their
// conjunction; warnings never affect it.
type Result struct {
	Valid bool `json:"valid"`

	SignatureFound bool `json:"signature_found"`
	SignatureValid bool `json:"signature_valid"`
	CertChainValid bool `json:"cert_chain_valid"`
	NotRevoked     bool `json:"not_revoked"`

	DocumentType model.DocumentType `json:"document_type,omitempty"`
	// Reference is the Id of the signed group, e.g. "NFe" plus the access key
	Reference string      `json:"reference,omitempty"`
	Signer    *SignerInfo `json:"signer,omitempty"`
	SignedAt  *time.Time  `json:"signed_at,omitempty"`

	CertChain []*x509.Certificate `json:"-"`

	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// SignerInfo describes the signing certificate
type SignerInfo struct {
	Name string `json:"name"`
	// Document is the CNPJ or CPF an ICP-Brasil subject carries after the
	// last colon of its common name
	Document     string    `json:"document,omitempty"`
	Organization string    `json:"organization,omitempty"`
	SerialNumber string    `json:"serial_number"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) failf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) settle() *Result {
	r.Valid = len(r.Errors) == 0 &&
		r.SignatureFound && r.SignatureValid && r.CertChainValid && r.NotRevoked
	return r
}

func signerOf(cert *x509.Certificate) *SignerInfo {
	s := &SignerInfo{
		Name:         cert.Subject.CommonName,
		SerialNumber: cert.SerialNumber.String(),
		Issuer:       firstNonEmpty(cert.Issuer.CommonName, first(cert.Issuer.Organization)),
		Organization: first(cert.Subject.Organization),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}
	if name, doc, ok := cutLast(s.Name, ":"); ok && brdoc.ValidCPFOrCNPJ(doc) {
		s.Name, s.Document = name, doc
	}
	return s
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
