package signature_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/signature"
	"github.com/rezonia/fiscal-manager/internal/signature/trust"
	"github.com/rezonia/fiscal-manager/internal/signature/trust/trusttest"
)

const (
	nfeNS     = "http://www.portalfiscal.inf.br/nfe"
	accessKey = "35250732409620000175550010000037471011544648"
	cnpj      = "32409620000175"
)

// signedNFe builds an NFe signed the way SEFAZ expects: Signature is a sibling
// of infNFe and references it by Id.
func signedNFe(t *testing.T, leaf *trusttest.Leaf, emitter string, issuedAt time.Time) []byte {
	t.Helper()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	nfe := doc.CreateElement("NFe")
	nfe.CreateAttr("xmlns", nfeNS)
	inf := nfe.CreateElement("infNFe")
	inf.CreateAttr("Id", "NFe"+accessKey)
	inf.CreateAttr("versao", "4.00")
	ide := inf.CreateElement("ide")
	ide.CreateElement("mod").SetText("55")
	ide.CreateElement("dhEmi").SetText(issuedAt.Format(time.RFC3339))
	inf.CreateElement("emit").CreateElement("CNPJ").SetText(emitter)
	inf.CreateElement("total").CreateElement("vNF").SetText("150.00")

	toSign := inf.Copy()
	toSign.CreateAttr("xmlns", nfeNS)

	sctx := dsig.NewDefaultSigningContext(leaf)
	sctx.Prefix = ""
	sctx.IdAttribute = "Id"
	sctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()
	signed, err := sctx.SignEnveloped(toSign)
	require.NoError(t, err)

	sig := signed.FindElement("Signature")
	require.NotNil(t, sig)
	signed.RemoveChild(sig)
	nfe.AddChild(sig)

	out, err := doc.WriteToBytes()
	require.NoError(t, err)
	return out
}

func setup(t *testing.T, cn string) (*trusttest.CA, *trusttest.Leaf, *signature.Verifier) {
	t.Helper()
	ca := trusttest.NewCA(t, "AC Raiz Teste")
	leaf := ca.Issue(t, cn)
	store := trust.NewStore()
	store.AddCertificate(ca.Cert)
	return ca, leaf, signature.NewVerifier(store)
}

func TestVerify_ValidNFe(t *testing.T) {
	_, leaf, v := setup(t, "EMPRESA TESTE LTDA:"+cnpj)
	data := signedNFe(t, leaf, cnpj, time.Now().Add(-time.Minute).Truncate(time.Second))

	res, err := v.Verify(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.True(t, res.SignatureValid)
	assert.True(t, res.CertChainValid)
	assert.True(t, res.NotRevoked)
	assert.Equal(t, model.DocumentNFe, res.DocumentType)
	assert.Equal(t, "NFe"+accessKey, res.Reference)
	require.NotNil(t, res.Signer)
	assert.Equal(t, "EMPRESA TESTE LTDA", res.Signer.Name)
	assert.Equal(t, cnpj, res.Signer.Document)
	assert.NotNil(t, res.SignedAt)
	assert.Len(t, res.CertChain, 2)
	assert.Empty(t, res.Warnings)
}

func TestVerify_TamperedContent(t *testing.T) {
	_, leaf, v := setup(t, "EMPRESA TESTE LTDA:"+cnpj)
	data := signedNFe(t, leaf, cnpj, time.Now().Add(-time.Minute).Truncate(time.Second))
	data = bytes.Replace(data, []byte("150.00"), []byte("1.50"), 1)

	res, err := v.Verify(context.Background(), data)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.False(t, res.SignatureValid)
	assert.True(t, res.CertChainValid)
	assert.NotEmpty(t, res.Errors)
}

func TestVerify_UntrustedSigner(t *testing.T) {
	rogue := trusttest.NewCA(t, "AC Desconhecida")
	leaf := rogue.Issue(t, "EMPRESA TESTE LTDA:"+cnpj)
	v := signature.NewVerifier(trust.NewStore())

	res, err := v.Verify(context.Background(), signedNFe(t, leaf, cnpj, time.Now().Add(-time.Minute).Truncate(time.Second)))
	require.NoError(t, err)
	assert.True(t, res.SignatureValid)
	assert.False(t, res.CertChainValid)
	assert.False(t, res.Valid)
}

func TestVerify_SignerFromAnotherCompany(t *testing.T) {
	_, leaf, v := setup(t, "OUTRA EMPRESA SA:11222333000181")
	res, err := v.Verify(context.Background(), signedNFe(t, leaf, cnpj, time.Now().Add(-time.Minute).Truncate(time.Second)))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "does not belong to emitter")
}

func TestVerify_Unverifiable(t *testing.T) {
	v := signature.NewVerifier(nil)

	tests := []struct {
		name string
		data string
		code string
	}{
		{"not xml", "{}", signature.ErrCodeMalformed},
		{"no signature", `<NFe xmlns="` + nfeNS + `"><infNFe Id="NFe` + accessKey + `"/></NFe>`, signature.ErrCodeNoSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), []byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalid)
			var serr *signature.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.code, serr.Code)
		})
	}
}

func TestVerify_MissingReference(t *testing.T) {
	v := signature.NewVerifier(nil)
	data := `<NFe xmlns="` + nfeNS + `"><infNFe Id="NFe1"/>` +
		`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#NFe2"/></SignedInfo></Signature></NFe>`

	res, err := v.Verify(context.Background(), []byte(data))
	require.NoError(t, err)
	assert.True(t, res.SignatureFound)
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "NFe2 not found")
}
