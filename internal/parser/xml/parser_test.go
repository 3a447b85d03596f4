package xml_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/model"
	xmlparser "github.com/rezonia/fiscal-manager/internal/parser/xml"
)

const (
	nfeKey  = "35250732409620000175550010000037471011544648"
	nfceKey = "35250732409620000175650020000000151111122226"
	cteKey  = "35250732409620000175570010000001201123456780"
	mdfeKey = "35250732409620000175580010000000091876543215"
)

const procNFe = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe` + nfeKey + `" versao="4.00">
      <ide>
        <cUF>35</cUF><mod>55</mod><serie>1</serie><nNF>3747</nNF>
        <dhEmi>2025-07-15T10:30:00-03:00</dhEmi><tpAmb>1</tpAmb>
      </ide>
      <emit>
        <CNPJ>32409620000175</CNPJ><xNome>Distribuidora Exemplo LTDA</xNome>
        <enderEmit><UF>SP</UF></enderEmit>
      </emit>
      <dest><CPF>52998224725</CPF><xNome>Maria Silva</xNome></dest>
      <total><ICMSTot><vNF>1532.90</vNF></ICMSTot></total>
    </infNFe>
  </NFe>
  <protNFe versao="4.00">
    <infProt>
      <tpAmb>1</tpAmb><chNFe>` + nfeKey + `</chNFe><nProt>135250001234567</nProt>
      <cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo>
    </infProt>
  </protNFe>
</nfeProc>`

const bareNFCe = `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
  <infNFe Id="NFe` + nfceKey + `" versao="4.00">
    <ide><mod>65</mod><serie>2</serie><nNF>15</nNF><tpAmb>2</tpAmb></ide>
    <emit><CNPJ>32409620000175</CNPJ><xNome>Padaria Exemplo</xNome></emit>
    <total><ICMSTot><vNF>12.50</vNF></ICMSTot></total>
  </infNFe>
</NFe>`

const procCTe = `<cteProc xmlns="http://www.portalfiscal.inf.br/cte" versao="4.00">
  <CTe>
    <infCte Id="CTe` + cteKey + `" versao="4.00">
      <ide><mod>57</mod><serie>1</serie><nCT>120</nCT><tpAmb>1</tpAmb></ide>
      <emit><CNPJ>32409620000175</CNPJ><xNome>Transportes Exemplo</xNome></emit>
      <dest><CNPJ>11222333000181</CNPJ><xNome>Comercial Exemplo</xNome></dest>
      <vPrest><vTPrest>850.00</vTPrest></vPrest>
    </infCte>
  </CTe>
  <protCTe><infProt><nProt>135250009999999</nProt><cStat>100</cStat><xMotivo>Autorizado o uso do CT-e</xMotivo></infProt></protCTe>
</cteProc>`

const bareMDFe = `<MDFe xmlns="http://www.portalfiscal.inf.br/mdfe">
  <infMDFe Id="MDFe` + mdfeKey + `" versao="3.00">
    <ide><mod>58</mod><serie>1</serie><nMDF>9</nMDF><tpAmb>2</tpAmb></ide>
    <emit><CNPJ>32409620000175</CNPJ><xNome>Transportes Exemplo</xNome></emit>
    <tot><vCarga>25000.00</vCarga></tot>
  </infMDFe>
</MDFe>`

func TestRegistry_NewRegistry(t *testing.T) {
	registry := xmlparser.NewRegistry()
	require.NotNil(t, registry)

	for _, layout := range []string{"nfe", "cte", "mdfe"} {
		adapter := registry.GetAdapter(layout)
		require.NotNil(t, adapter, "adapter for %s should exist", layout)
		assert.Equal(t, layout, adapter.Layout())
	}
	assert.Nil(t, registry.GetAdapter("nfse"))
}

func TestRegistry_Detect(t *testing.T) {
	registry := xmlparser.NewRegistry()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"procNFe", procNFe, "nfe"},
		{"bare NFCe", bareNFCe, "nfe"},
		{"procCTe", procCTe, "cte"},
		{"bare MDFe", bareMDFe, "mdfe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := registry.Detect([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, adapter.Layout())
		})
	}

	_, err := registry.Detect([]byte(`<Invoice><TaxID>1</TaxID></Invoice>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestParse_ProcNFe(t *testing.T) {
	doc, err := xmlparser.NewRegistry().Parse(context.Background(), []byte(procNFe))
	require.NoError(t, err)

	assert.Equal(t, model.DocumentNFe, doc.DocumentType)
	assert.Equal(t, nfeKey, doc.AccessKey)
	assert.Equal(t, 55, doc.Model)
	assert.Equal(t, 1, doc.Series)
	assert.Equal(t, int64(3747), doc.Number)
	assert.Equal(t, model.EnvironmentProduction, doc.Environment)
	assert.Equal(t, "32409620000175", doc.EmitterCNPJ)
	assert.Equal(t, "SP", doc.EmitterUF)
	assert.Equal(t, "52998224725", doc.RecipientDoc)
	assert.True(t, doc.Total.Equal(decimal.RequireFromString("1532.90")))
	require.NotNil(t, doc.IssuedAt)
	assert.Equal(t, time.July, doc.IssuedAt.Month())

	assert.True(t, doc.Authorized)
	assert.Equal(t, "135250001234567", doc.Protocol)
	assert.Equal(t, "100", doc.StatusCode)
}

func TestParse_BareNFCe(t *testing.T) {
	doc, err := xmlparser.NewRegistry().Parse(context.Background(), []byte(bareNFCe))
	require.NoError(t, err)

	assert.Equal(t, model.DocumentNFCe, doc.DocumentType)
	assert.Equal(t, int64(15), doc.Number)
	assert.Equal(t, model.EnvironmentHomologation, doc.Environment)
	assert.False(t, doc.Authorized)
	assert.Empty(t, doc.Protocol)
	assert.Nil(t, doc.IssuedAt)
}

func TestParse_CTeAndMDFe(t *testing.T) {
	registry := xmlparser.NewRegistry()

	cte, err := registry.Parse(context.Background(), []byte(procCTe))
	require.NoError(t, err)
	assert.Equal(t, model.DocumentCTe, cte.DocumentType)
	assert.Equal(t, cteKey, cte.AccessKey)
	assert.Equal(t, "11222333000181", cte.RecipientDoc)
	assert.True(t, cte.Total.Equal(decimal.NewFromInt(850)))
	assert.True(t, cte.Authorized)

	mdfe, err := registry.Parse(context.Background(), []byte(bareMDFe))
	require.NoError(t, err)
	assert.Equal(t, model.DocumentMDFe, mdfe.DocumentType)
	assert.Equal(t, int64(9), mdfe.Number)
	assert.True(t, mdfe.Total.Equal(decimal.NewFromInt(25000)))
}

func TestParse_KeyMismatch(t *testing.T) {
	registry := xmlparser.NewRegistry()

	tests := []struct {
		name    string
		content string
	}{
		{"bad check digit", strings.Replace(procNFe, nfeKey, nfeKey[:43]+"0", 1)},
		{"number differs", strings.Replace(procNFe, "<nNF>3747</nNF>", "<nNF>3748</nNF>", 1)},
		{"series differs", strings.Replace(procNFe, "<serie>1</serie>", "<serie>2</serie>", 1)},
		{"emitter differs", strings.Replace(procNFe, "<CNPJ>32409620000175</CNPJ>", "<CNPJ>11222333000181</CNPJ>", 1)},
		{"malformed id", strings.Replace(procNFe, `Id="NFe`, `Id="X`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Parse(context.Background(), []byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalid)

			var pe *model.ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := xmlparser.NewRegistry().Parse(context.Background(), []byte(`<NFe><infNFe Id="NFe1"><ide>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalid)
}

type stubAdapter struct{}

func (stubAdapter) Parse(context.Context, io.Reader) (*model.FiscalXML, error) {
	return &model.FiscalXML{DocumentType: model.DocumentNFSe}, nil
}
func (stubAdapter) InfoGroup() string { return "infNFe" }
func (stubAdapter) Layout() string    { return "custom" }

func TestRegistry_RegisterAdapterReplaces(t *testing.T) {
	registry := xmlparser.NewRegistry()
	registry.RegisterAdapter(stubAdapter{})

	doc, err := registry.Parse(context.Background(), []byte(procNFe))
	require.NoError(t, err)
	assert.Equal(t, model.DocumentNFSe, doc.DocumentType)
	assert.Nil(t, registry.GetAdapter("nfe"))
	assert.Equal(t, []string{"custom", "cte", "mdfe"}, registry.Layouts())
}

func TestRegistry_DetectPrefixed(t *testing.T) {
	content := `<ns:nfeProc xmlns:ns="http://www.portalfiscal.inf.br/nfe"><ns:NFe><ns:infNFe Id="NFe1"/></ns:NFe></ns:nfeProc>`
	adapter, err := xmlparser.NewRegistry().Detect([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "nfe", adapter.Layout())
}
