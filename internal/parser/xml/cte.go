package xml

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// CTe XML structures
type cteProc struct {
	XMLName xml.Name `xml:"cteProc"`
	CTe     cteDoc   `xml:"CTe"`
	ProtCTe xmlProt  `xml:"protCTe"`
}

type cteDoc struct {
	XMLName xml.Name `xml:"CTe"`
	InfCte  cteInf   `xml:"infCte"`
}

type cteInf struct {
	ID   string `xml:"Id,attr"`
	Ide  cteIde `xml:"ide"`
	Emit struct {
		CNPJ  string `xml:"CNPJ"`
		XNome string `xml:"xNome"`
		UF    string `xml:"enderEmit>UF"`
	} `xml:"emit"`
	Dest   xmlParty `xml:"dest"`
	VPrest struct {
		VTPrest string `xml:"vTPrest"`
	} `xml:"vPrest"`
}

type cteIde struct {
	xmlIde
	NCT string `xml:"nCT"`
}

// CTeAdapter parses CTe, bare or wrapped in cteProc
type CTeAdapter struct{}

// NewCTeAdapter creates a new CTe adapter
func NewCTeAdapter() *CTeAdapter {
	return &CTeAdapter{}
}

// Layout returns the layout name
func (a *CTeAdapter) Layout() string {
	return "cte"
}

func (a *CTeAdapter) InfoGroup() string { return "infCte" }

// Parse parses CTe XML into a summary
func (a *CTeAdapter) Parse(ctx context.Context, r io.Reader) (*model.FiscalXML, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.DocumentCTe, "content", "failed to read content", err)
	}

	var (
		doc  cteDoc
		prot *xmlProt
	)
	var proc cteProc
	if err := xml.Unmarshal(content, &proc); err == nil && proc.CTe.InfCte.ID != "" {
		doc = proc.CTe
		prot = &proc.ProtCTe
	} else if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, model.NewParseError(model.DocumentCTe, "xml", "failed to parse XML", err)
	}

	inf := doc.InfCte
	if inf.ID == "" {
		return nil, model.NewParseError(model.DocumentCTe, "infCte", "Id attribute not found", nil)
	}

	out := &model.FiscalXML{
		DocumentType:  model.DocumentCTe,
		Model:         parseInt(inf.Ide.Mod),
		Series:        parseInt(inf.Ide.Serie),
		Number:        parseNumber(inf.Ide.NCT),
		Environment:   parseEnvironment(inf.Ide.TpAmb),
		IssuedAt:      parseDateTime(inf.Ide.DhEmi),
		EmitterCNPJ:   xmlParty{CNPJ: inf.Emit.CNPJ}.document(),
		EmitterName:   inf.Emit.XNome,
		EmitterUF:     inf.Emit.UF,
		RecipientDoc:  inf.Dest.document(),
		RecipientName: inf.Dest.XNome,
		Total:         parseAmount(inf.VPrest.VTPrest),
	}

	if err := checkKey(out, inf.ID); err != nil {
		return nil, err
	}
	if prot != nil {
		applyProtocol(out, *prot)
	}
	return out, nil
}
