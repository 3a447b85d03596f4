package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FiscalXML is the summary read from an NFe/NFCe, CTe or MDFe XML, with or
// without its authorization protocol (procNFe, cteProc, mdfeProc).
type FiscalXML struct {
	DocumentType  DocumentType    `json:"document_type"`
	AccessKey     string          `json:"access_key"`
	Model         int             `json:"model"`
	Series        int             `json:"series"`
	Number        int64           `json:"number"`
	Environment   Environment     `json:"environment,omitempty"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	EmitterCNPJ   string          `json:"emitter_cnpj"`
	EmitterName   string          `json:"emitter_name,omitempty"`
	EmitterUF     string          `json:"emitter_uf,omitempty"`
	RecipientDoc  string          `json:"recipient_document,omitempty"`
	RecipientName string          `json:"recipient_name,omitempty"`
	Total         decimal.Decimal `json:"total"`
	// Protocol is filled when the XML carries the SEFAZ authorization
	Protocol   string `json:"protocol,omitempty"`
	StatusCode string `json:"status_code,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	Authorized bool   `json:"authorized"`
}
