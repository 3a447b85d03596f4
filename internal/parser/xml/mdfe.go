package xml

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// MDFe XML structures
type mdfeProc struct {
	XMLName  xml.Name `xml:"mdfeProc"`
	MDFe     mdfeDoc  `xml:"MDFe"`
	ProtMDFe xmlProt  `xml:"protMDFe"`
}

type mdfeDoc struct {
	XMLName xml.Name `xml:"MDFe"`
	InfMDFe mdfeInf  `xml:"infMDFe"`
}

type mdfeInf struct {
	ID   string   `xml:"Id,attr"`
	Ide  mdfeIde  `xml:"ide"`
	Emit xmlParty `xml:"emit"`
	Tot  struct {
		VCarga string `xml:"vCarga"`
	} `xml:"tot"`
}

type mdfeIde struct {
	xmlIde
	NMDF string `xml:"nMDF"`
}

// MDFeAdapter parses MDFe, bare or wrapped in mdfeProc
type MDFeAdapter struct{}

// NewMDFeAdapter creates a new MDFe adapter
func NewMDFeAdapter() *MDFeAdapter {
	return &MDFeAdapter{}
}

// Layout returns the layout name
func (a *MDFeAdapter) Layout() string {
	return "mdfe"
}

func (a *MDFeAdapter) InfoGroup() string { return "infMDFe" }

// Parse parses MDFe XML into a summary. The total is the cargo value.
func (a *MDFeAdapter) Parse(ctx context.Context, r io.Reader) (*model.FiscalXML, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.DocumentMDFe, "content", "failed to read content", err)
	}

	var (
		doc  mdfeDoc
		prot *xmlProt
	)
	var proc mdfeProc
	if err := xml.Unmarshal(content, &proc); err == nil && proc.MDFe.InfMDFe.ID != "" {
		doc = proc.MDFe
		prot = &proc.ProtMDFe
	} else if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, model.NewParseError(model.DocumentMDFe, "xml", "failed to parse XML", err)
	}

	inf := doc.InfMDFe
	if inf.ID == "" {
		return nil, model.NewParseError(model.DocumentMDFe, "infMDFe", "Id attribute not found", nil)
	}

	out := &model.FiscalXML{
		DocumentType: model.DocumentMDFe,
		Model:        parseInt(inf.Ide.Mod),
		Series:       parseInt(inf.Ide.Serie),
		Number:       parseNumber(inf.Ide.NMDF),
		Environment:  parseEnvironment(inf.Ide.TpAmb),
		IssuedAt:     parseDateTime(inf.Ide.DhEmi),
		EmitterCNPJ:  inf.Emit.document(),
		EmitterName:  inf.Emit.XNome,
		EmitterUF:    inf.Emit.UF,
		Total:        parseAmount(inf.Tot.VCarga),
	}

	if err := checkKey(out, inf.ID); err != nil {
		return nil, err
	}
	if prot != nil {
		applyProtocol(out, *prot)
	}
	return out, nil
}
