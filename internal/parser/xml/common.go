package xml

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/fiscal-manager/internal/accesskey"
	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
)

// SEFAZ result codes meaning the document is authorized
var authorizedCodes = map[string]bool{
	"100": true, // Autorizado o uso
	"150": true, // Autorizado fora de prazo
}

// Shared XML groups

type xmlParty struct {
	CNPJ  string `xml:"CNPJ"`
	CPF   string `xml:"CPF"`
	XNome string `xml:"xNome"`
	UF    string `xml:"enderEmit>UF"`
}

type xmlProt struct {
	InfProt struct {
		TpAmb   string `xml:"tpAmb"`
		NProt   string `xml:"nProt"`
		CStat   string `xml:"cStat"`
		XMotivo string `xml:"xMotivo"`
	} `xml:"infProt"`
}

type xmlIde struct {
	CUF   string `xml:"cUF"`
	Mod   string `xml:"mod"`
	Serie string `xml:"serie"`
	DhEmi string `xml:"dhEmi"`
	TpAmb string `xml:"tpAmb"`
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseNumber(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseDateTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseEnvironment(tpAmb string) model.Environment {
	env, _ := model.ParseEnvironment(tpAmb)
	return env
}

func (p xmlParty) document() string {
	if p.CNPJ != "" {
		return brdoc.OnlyDigits(p.CNPJ)
	}
	return brdoc.OnlyDigits(p.CPF)
}

// applyProtocol copies the authorization result into doc
func applyProtocol(doc *model.FiscalXML, prot xmlProt) {
	doc.Protocol = strings.TrimSpace(prot.InfProt.NProt)
	doc.StatusCode = strings.TrimSpace(prot.InfProt.CStat)
	doc.StatusText = strings.TrimSpace(prot.InfProt.XMotivo)
	doc.Authorized = authorizedCodes[doc.StatusCode]
}

// checkKey validates the access key of the Id attribute and that it agrees
// with the ide group
func checkKey(doc *model.FiscalXML, id string) error {
	key := accesskey.ExtractFromID(id)
	if key == "" {
		return model.NewParseError(doc.DocumentType, "Id", fmt.Sprintf("malformed Id attribute %q", id), nil)
	}
	parts, err := accesskey.Parse(key)
	if err != nil {
		return model.NewParseError(doc.DocumentType, "Id", "invalid access key", err)
	}
	switch {
	case parts.Model != doc.Model:
		return model.NewParseError(doc.DocumentType, "mod", fmt.Sprintf("access key model %d differs from %d", parts.Model, doc.Model), nil)
	case parts.Series != doc.Series:
		return model.NewParseError(doc.DocumentType, "serie", fmt.Sprintf("access key series %d differs from %d", parts.Series, doc.Series), nil)
	case parts.Number != doc.Number:
		return model.NewParseError(doc.DocumentType, "number", fmt.Sprintf("access key number %d differs from %d", parts.Number, doc.Number), nil)
	case doc.EmitterCNPJ != "" && parts.CNPJ != doc.EmitterCNPJ:
		return model.NewParseError(doc.DocumentType, "emit", "access key CNPJ differs from the emitter", nil)
	}
	doc.AccessKey = key
	return nil
}
