package model

import "strings"

// DocumentType identifies a Brazilian electronic fiscal document
type DocumentType string

const (
	DocumentNFe  DocumentType = "nfe"  // Nota Fiscal Eletrônica, model 55
	DocumentNFCe DocumentType = "nfce" // Nota Fiscal de Consumidor Eletrônica, model 65
	DocumentCTe  DocumentType = "cte"  // Conhecimento de Transporte Eletrônico, model 57
	DocumentMDFe DocumentType = "mdfe" // Manifesto de Documentos Fiscais, model 58
	DocumentNFSe DocumentType = "nfse" // Nota Fiscal de Serviço (municipal)
)

// DocumentTypes lists every supported document type
var DocumentTypes = []DocumentType{DocumentNFe, DocumentNFCe, DocumentCTe, DocumentMDFe, DocumentNFSe}

// ParseDocumentType accepts the type name or its SEFAZ model code
func ParseDocumentType(s string) (DocumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nfe", "55":
		return DocumentNFe, true
	case "nfce", "65":
		return DocumentNFCe, true
	case "cte", "57":
		return DocumentCTe, true
	case "mdfe", "58":
		return DocumentMDFe, true
	case "nfse":
		return DocumentNFSe, true
	}
	return "", false
}

// Model returns the SEFAZ model code, 0 when the type has none
func (t DocumentType) Model() int {
	switch t {
	case DocumentNFe:
		return 55
	case DocumentNFCe:
		return 65
	case DocumentCTe:
		return 57
	case DocumentMDFe:
		return 58
	}
	return 0
}

// HasAccessKey reports whether documents of this type carry a 44-digit access key
func (t DocumentType) HasAccessKey() bool {
	return t.Model() != 0
}

// Valid reports whether t is a known document type
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentNFe, DocumentNFCe, DocumentCTe, DocumentMDFe, DocumentNFSe:
		return true
	}
	return false
}

// Environment is the SEFAZ environment (tpAmb)
type Environment string

const (
	EnvironmentProduction   Environment = "production"
	EnvironmentHomologation Environment = "homologation"
)

// ParseEnvironment accepts the English name, the Portuguese name or the tpAmb code
func ParseEnvironment(s string) (Environment, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "producao", "produção", "1":
		return EnvironmentProduction, true
	case "homologation", "homologacao", "homologação", "2":
		return EnvironmentHomologation, true
	}
	return "", false
}

// TpAmb returns the SEFAZ environment code
func (e Environment) TpAmb() int {
	if e == EnvironmentProduction {
		return 1
	}
	return 2
}

// Valid reports whether e is a known environment
func (e Environment) Valid() bool {
	return e == EnvironmentProduction || e == EnvironmentHomologation
}
