package xml

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// NFe XML structures, shared by models 55 (NFe) and 65 (NFCe)
type nfeProc struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeDoc   `xml:"NFe"`
	ProtNFe xmlProt  `xml:"protNFe"`
}

type nfeDoc struct {
	XMLName xml.Name `xml:"NFe"`
	InfNFe  nfeInf   `xml:"infNFe"`
}

type nfeInf struct {
	ID    string   `xml:"Id,attr"`
	Ide   nfeIde   `xml:"ide"`
	Emit  xmlParty `xml:"emit"`
	Dest  xmlParty `xml:"dest"`
	Total struct {
		VNF string `xml:"ICMSTot>vNF"`
	} `xml:"total"`
}

type nfeIde struct {
	xmlIde
	NNF string `xml:"nNF"`
}

// NFeAdapter parses NFe and NFCe, bare or wrapped in nfeProc
type NFeAdapter struct{}

// NewNFeAdapter creates a new NFe adapter
func NewNFeAdapter() *NFeAdapter {
	return &NFeAdapter{}
}

// Layout returns the layout name
func (a *NFeAdapter) Layout() string {
	return "nfe"
}

func (a *NFeAdapter) InfoGroup() string { return "infNFe" }

// Parse parses NFe XML into a summary
func (a *NFeAdapter) Parse(ctx context.Context, r io.Reader) (*model.FiscalXML, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.DocumentNFe, "content", "failed to read content", err)
	}

	var (
		doc  nfeDoc
		prot *xmlProt
	)
	var proc nfeProc
	if err := xml.Unmarshal(content, &proc); err == nil && proc.NFe.InfNFe.ID != "" {
		doc = proc.NFe
		prot = &proc.ProtNFe
	} else if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, model.NewParseError(model.DocumentNFe, "xml", "failed to parse XML", err)
	}

	inf := doc.InfNFe
	if inf.ID == "" {
		return nil, model.NewParseError(model.DocumentNFe, "infNFe", "Id attribute not found", nil)
	}

	out := &model.FiscalXML{
		DocumentType:  model.DocumentNFe,
		Model:         parseInt(inf.Ide.Mod),
		Series:        parseInt(inf.Ide.Serie),
		Number:        parseNumber(inf.Ide.NNF),
		Environment:   parseEnvironment(inf.Ide.TpAmb),
		IssuedAt:      parseDateTime(inf.Ide.DhEmi),
		EmitterCNPJ:   inf.Emit.document(),
		EmitterName:   inf.Emit.XNome,
		EmitterUF:     inf.Emit.UF,
		RecipientDoc:  inf.Dest.document(),
		RecipientName: inf.Dest.XNome,
		Total:         parseAmount(inf.Total.VNF),
	}
	if out.Model == model.DocumentNFCe.Model() {
		out.DocumentType = model.DocumentNFCe
	}

	if err := checkKey(out, inf.ID); err != nil {
		return nil, err
	}
	if prot != nil {
		applyProtocol(out, *prot)
	}
	return out, nil
}
