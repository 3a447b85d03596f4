// Package fiscaldoc provides a public API for reading Brazilian electronic
// fiscal documents without running the fiscal-manager service.
//
// It decodes 44-digit access keys, checks CNPJ and CPF numbers, and parses
// NF-e, NFC-e, CT-e and MDF-e XML, optionally validating the XSD and the
// XML-DSig signature.
//
// Example usage:
//
//	in, err := fiscaldoc.NewInspector(fiscaldoc.Options{VerifySignatures: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer in.Close()
//	res, err := in.Inspect(ctx, reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Document.AccessKey, res.Document.Total)
package fiscaldoc

import (
	"github.com/rezonia/fiscal-manager/internal/accesskey"
	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/documents"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/signature"
)

// Re-export core types for public API
type (
	Document        = model.FiscalXML
	DocumentType    = model.DocumentType
	Environment     = model.Environment
	AccessKey       = accesskey.Parts
	Inspection      = documents.Inspection
	SignatureResult = signature.Result
	SignerInfo      = signature.SignerInfo
)

// Re-export document types
const (
	NFe  = model.DocumentNFe
	NFCe = model.DocumentNFCe
	CTe  = model.DocumentCTe
	MDFe = model.DocumentMDFe
	NFSe = model.DocumentNFSe
)

// Re-export environments
const (
	Production   = model.EnvironmentProduction
	Homologation = model.EnvironmentHomologation
)

// Re-export error types
type (
	ParseError      = model.ParseError
	ValidationError = model.ValidationError
)

// Re-export sentinel errors
var (
	ErrInvalid = model.ErrInvalid
)

// ParseAccessKey validates a 44-digit access key and splits it into its fields
func ParseAccessKey(key string) (*AccessKey, error) {
	return accesskey.Parse(key)
}

// BuildAccessKey assembles an access key and appends its check digit
func BuildAccessKey(p AccessKey) (string, error) {
	return accesskey.Build(p)
}

// ValidCNPJ reports whether s, with or without punctuation, is a valid CNPJ
func ValidCNPJ(s string) bool {
	return brdoc.ValidCNPJ(s)
}

// ValidCPF reports whether s, with or without punctuation, is a valid CPF
func ValidCPF(s string) bool {
	return brdoc.ValidCPF(s)
}

// FormatCNPJ renders a CNPJ as 00.000.000/0000-00
func FormatCNPJ(s string) string {
	return brdoc.FormatCNPJ(s)
}
