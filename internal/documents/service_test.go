package documents_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/documents"
	"github.com/rezonia/fiscal-manager/internal/emitter"
	"github.com/rezonia/fiscal-manager/internal/events"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/numbering"
	"github.com/rezonia/fiscal-manager/internal/parser/pdf/pdftest"
	xmlparser "github.com/rezonia/fiscal-manager/internal/parser/xml"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/signature"
	"github.com/rezonia/fiscal-manager/internal/store"
	"github.com/rezonia/fiscal-manager/internal/store/storetest"
)

const procTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe%[1]s" versao="4.00">
      <ide><cUF>35</cUF><mod>55</mod><serie>%[2]d</serie><nNF>%[3]d</nNF><tpAmb>2</tpAmb></ide>
      <emit><CNPJ>%[4]s</CNPJ><xNome>Comercial Exemplo LTDA</xNome></emit>
      <total><ICMSTot><vNF>99.90</vNF></ICMSTot></total>
    </infNFe>
  </NFe>
  <protNFe versao="4.00">
    <infProt><tpAmb>2</tpAmb><chNFe>%[1]s</chNFe><nProt>%[5]s</nProt><cStat>%[6]s</cStat><xMotivo>ok</xMotivo></infProt>
  </protNFe>
</nfeProc>`

type fixture struct {
	emitters *emitter.Service
	docs     *documents.Service
	pub      *events.MemoryPublisher
	cnpj     string
	emitter  uint
}

type schemaFunc func([]byte) error

func (f schemaFunc) Validate(data []byte) error { return f(data) }

func newFixture(t *testing.T, opts ...documents.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	db := storetest.New(t)
	xdb, err := store.SQLX(db)
	require.NoError(t, err)

	pub := events.NewMemoryPublisher(nil)
	clock := func() time.Time { return time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC) }
	emitters := emitter.NewService(db, numbering.New(xdb), emitter.WithClock(clock))

	e := &model.Emitter{CNPJ: "11222333000181", LegalName: "Comercial Exemplo LTDA", UF: "SP", TaxRegime: 1}
	require.NoError(t, emitters.Create(ctx, e))
	_, err = emitters.ConfigureSequence(ctx, model.SequenceKey{
		EmitterID: e.ID, DocumentType: model.DocumentNFe, Environment: model.EnvironmentHomologation, Series: 1,
	}, 1)
	require.NoError(t, err)

	opts = append([]documents.Option{documents.WithPublisher(pub)}, opts...)
	return &fixture{
		emitters: emitters,
		docs:     documents.NewService(db, opts...),
		pub:      pub,
		cnpj:     e.CNPJ,
		emitter:  e.ID,
	}
}

func (f *fixture) issue(t *testing.T) *model.Document {
	t.Helper()
	doc, err := f.emitters.Issue(context.Background(), f.emitter, emitter.IssueRequest{DocumentType: model.DocumentNFe, Series: 1})
	require.NoError(t, err)
	return doc
}

func (f *fixture) procXML(doc *model.Document, cStat string) []byte {
	return []byte(fmt.Sprintf(procTemplate, doc.AccessKey, doc.Series, doc.Number, f.cnpj, "135250000000001", cStat))
}

func (f *fixture) statusEvents(t *testing.T) []documents.StatusChangedEvent {
	t.Helper()
	var out []documents.StatusChangedEvent
	for _, m := range f.pub.Messages() {
		if m.Type != events.StatusChanged {
			continue
		}
		var env events.Envelope
		require.NoError(t, json.Unmarshal(m.Payload, &env))
		var ev documents.StatusChangedEvent
		require.NoError(t, json.Unmarshal(env.Data, &ev))
		out = append(out, ev)
	}
	return out
}

func TestListAndGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.issue(t)
	second := f.issue(t)

	page, err := f.docs.List(ctx, f.emitter, documents.ListFilter{}, repository.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, second.Number, page.Items[0].Number)

	page, err = f.docs.List(ctx, f.emitter+1, documents.ListFilter{}, repository.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	got, err := f.docs.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.AccessKey, got.AccessKey)
	assert.Equal(t, model.StatusReserved, got.Status)

	got, err = f.docs.GetByAccessKey(ctx, second.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = f.docs.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.issue(t)

	_, err := f.docs.UpdateStatus(ctx, doc.ID, documents.StatusUpdate{Status: model.StatusAuthorized})
	assert.ErrorIs(t, err, model.ErrInvalid)

	updated, err := f.docs.UpdateStatus(ctx, doc.ID, documents.StatusUpdate{Status: model.StatusAuthorized, Protocol: "135250000000001"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAuthorized, updated.Status)
	assert.Equal(t, "135250000000001", updated.Protocol)

	_, err = f.docs.UpdateStatus(ctx, doc.ID, documents.StatusUpdate{Status: model.StatusVoided})
	assert.ErrorIs(t, err, model.ErrConflict)

	updated, err = f.docs.UpdateStatus(ctx, doc.ID, documents.StatusUpdate{Status: model.StatusCancelled, Protocol: "135250000000002"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, updated.Status)

	evs := f.statusEvents(t)
	require.Len(t, evs, 2)
	assert.Equal(t, model.StatusReserved, evs[0].From)
	assert.Equal(t, model.StatusAuthorized, evs[0].To)
	assert.Equal(t, model.StatusCancelled, evs[1].To)
	assert.Equal(t, doc.AccessKey, evs[1].AccessKey)

	_, err = f.docs.UpdateStatus(ctx, uuid.New(), documents.StatusUpdate{Status: model.StatusVoided})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAttachPDF(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.issue(t)

	_, err := f.docs.PDF(ctx, doc.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	info, err := f.docs.AttachPDF(ctx, doc.ID, pdftest.Minimal(1))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)

	got, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PDFPages)

	data, err := f.docs.PDF(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, pdftest.Minimal(1), data)

	_, err = f.docs.AttachPDF(ctx, doc.ID, []byte("not a pdf"))
	assert.ErrorIs(t, err, model.ErrInvalid)

	_, err = f.docs.AttachPDF(ctx, uuid.New(), pdftest.Minimal(1))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAttachXML_AuthorizesReservedDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.issue(t)

	in, err := f.docs.AttachXML(ctx, doc.ID, f.procXML(doc, "100"))
	require.NoError(t, err)
	assert.Equal(t, doc.AccessKey, in.Document.AccessKey)
	assert.True(t, in.Document.Authorized)
	assert.Nil(t, in.SchemaValid)
	assert.Nil(t, in.Signature)

	got, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAuthorized, got.Status)
	assert.Equal(t, "135250000000001", got.Protocol)

	xml, err := f.docs.XML(ctx, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, xml, doc.AccessKey)
	assert.Len(t, f.statusEvents(t), 1)
}

func TestAttachXML_Rejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.issue(t)
	other := f.issue(t)

	// a key issued for another number
	_, err := f.docs.AttachXML(ctx, doc.ID, f.procXML(other, "100"))
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = f.docs.AttachXML(ctx, doc.ID, []byte("<nope/>"))
	assert.ErrorIs(t, err, model.ErrInvalid)

	// not authorized: stored without a status change
	_, err = f.docs.AttachXML(ctx, doc.ID, f.procXML(doc, "204"))
	require.NoError(t, err)
	got, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, got.Status)
	assert.Empty(t, f.statusEvents(t))
}

func TestAttachXML_FailedSignatureDoesNotAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, documents.WithVerifier(signature.NewVerifier(nil)))
	doc := f.issue(t)

	sig := `</infNFe><Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo>` +
		`<Reference URI="#NFe` + doc.AccessKey + `"/></SignedInfo></Signature>`
	data := strings.Replace(string(f.procXML(doc, "100")), "</infNFe>", sig, 1)

	_, err := f.docs.AttachXML(ctx, doc.ID, []byte(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Contains(t, err.Error(), "signature check failed")

	got, err := f.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, got.Status)
	assert.Empty(t, got.XML)
	assert.Empty(t, f.statusEvents(t))

	// unsigned XML is still accepted; only a failed check blocks
	_, err = f.docs.AttachXML(ctx, doc.ID, f.procXML(doc, "100"))
	require.NoError(t, err)
}

func TestInspectXML_SchemaAndSignature(t *testing.T) {
	ctx := context.Background()
	schemaErr := &xmlparser.SchemaError{Messages: []string{"line 4: element 'serie': not valid"}}
	f := newFixture(t,
		documents.WithSchema(schemaFunc(func([]byte) error { return schemaErr })),
		documents.WithVerifier(signature.NewVerifier(nil)),
	)
	doc := f.issue(t)

	in, err := f.docs.InspectXML(ctx, f.procXML(doc, "100"))
	require.NoError(t, err)
	require.NotNil(t, in.SchemaValid)
	assert.False(t, *in.SchemaValid)
	assert.Equal(t, schemaErr.Messages, in.SchemaErrors)
	assert.Nil(t, in.Signature)
	require.Len(t, in.Warnings, 1)
	assert.Contains(t, in.Warnings[0], signature.ErrCodeNoSignature)
	assert.Contains(t, in.Warnings[0], "no signature")
}
