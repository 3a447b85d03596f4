// Package signature verifies the XMLDSig enveloped signature of NFe, NFCe,
// CTe and MDFe documents against ICP-Brasil roots.
package signature

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/signature/trust"
)

// Verifier checks fiscal XML signatures
type Verifier struct {
	store  *trust.Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Verifier
type Option func(*Verifier)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) {
		v.logger = l
	}
}

// WithClock sets the time used when the document carries no emission or receipt date
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier backed by store
func NewVerifier(store *trust.Store, opts ...Option) *Verifier {
	if store == nil {
		store = trust.NewStore()
	}
	v := &Verifier{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature math, the certificate chain and revocation.
// An error is returned only when the document has no signature to check;
// failed checks are reported in the Result.
func (v *Verifier) Verify(ctx context.Context, data []byte) (*Result, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &Error{Code: ErrCodeMalformed, Cause: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &Error{Code: ErrCodeMalformed}
	}
	sig := root.FindElement(".//Signature")
	if sig == nil {
		return nil, &Error{Code: ErrCodeNoSignature}
	}

	res := &Result{SignatureFound: true, Warnings: []string{}, Errors: []string{}}
	res.DocumentType = layoutOf(root)

	signed, ref, err := signedElement(root, sig)
	if err != nil {
		res.failf("%v", err)
		return res.settle(), nil
	}
	res.Reference = ref

	at, ok := signingTime(root)
	if ok {
		res.SignedAt = &at
	} else {
		at = v.now()
	}

	cert, extra, err := certificates(sig)
	if err != nil {
		res.failf("%v", err)
		return res.settle(), nil
	}
	res.Signer = signerOf(cert)

	if err := validate(signed, sig, cert, at); err != nil {
		res.failf("signature validation failed: %v", err)
	} else {
		res.SignatureValid = true
	}

	chain, err := v.store.VerifyChain(cert, extra, at)
	if err != nil {
		res.failf("%v", err)
	} else {
		res.CertChainValid = true
		res.CertChain = chain
		v.checkRevocation(ctx, res, cert, chain)
	}

	if emitter := emitterCNPJ(root); emitter != "" && res.Signer.Document != "" {
		// e-CNPJ certificates of a branch may be issued to the head office
		if len(res.Signer.Document) != 14 || res.Signer.Document[:8] != emitter[:8] {
			res.warnf("signer %s does not belong to emitter %s", res.Signer.Document, emitter)
		}
	}

	res.settle()
	v.logger.Info("signature verified",
		zap.String("reference", res.Reference),
		zap.Bool("valid", res.Valid),
		zap.Strings("errors", res.Errors))
	return res, nil
}

func (v *Verifier) checkRevocation(ctx context.Context, res *Result, cert *x509.Certificate, chain []*x509.Certificate) {
	if len(chain) < 2 {
		res.NotRevoked = true
		res.warnf("revocation check skipped: no issuer in chain")
		return
	}
	good, err := v.store.CheckRevocation(ctx, cert, chain[1])
	switch {
	case err != nil && v.store.SoftFail():
		res.NotRevoked = true
		res.warnf("%v", err)
	case err != nil:
		res.failf("%v", err)
	case !good:
		res.failf("certificate has been revoked")
	default:
		res.NotRevoked = true
	}
}

// validate runs goxmldsig over a detached copy of the signed element. The
// fiscal layouts place Signature next to infNFe/infCte/infMDFe rather than
// inside it, so the copy gets the signature appended and the namespaces it
// inherited from its ancestors declared on itself.
func validate(signed, sig *etree.Element, cert *x509.Certificate, at time.Time) error {
	el := detach(signed)
	if !isDescendant(sig, signed) {
		el.AddChild(detach(sig))
	}

	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	vctx.IdAttribute = "Id"
	vctx.Clock = dsig.NewFakeClockAt(at)
	_, err := vctx.Validate(el)
	return err
}

func detach(el *etree.Element) *etree.Element {
	out := el.Copy()
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if a.Space != "xmlns" && !(a.Space == "" && a.Key == "xmlns") {
				continue
			}
			if out.SelectAttr(a.FullKey()) == nil {
				out.CreateAttr(a.FullKey(), a.Value)
			}
		}
	}
	return out
}

func isDescendant(el, ancestor *etree.Element) bool {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p == ancestor {
			return true
		}
	}
	return false
}

// signedElement resolves the element referenced by SignedInfo/Reference
func signedElement(root, sig *etree.Element) (*etree.Element, string, error) {
	ref := sig.FindElement("./SignedInfo/Reference")
	if ref == nil {
		return nil, "", fmt.Errorf("signature has no reference")
	}
	uri := ref.SelectAttrValue("URI", "")
	if uri == "" {
		return sig.Parent(), "", nil
	}
	id := strings.TrimPrefix(uri, "#")
	if id == uri || strings.ContainsAny(id, `'"[]`) {
		return nil, "", fmt.Errorf("unsupported reference %q", uri)
	}
	if root.SelectAttrValue("Id", "") == id {
		return root, id, nil
	}
	el := root.FindElement(".//*[@Id='" + id + "']")
	if el == nil {
		return nil, "", fmt.Errorf("referenced element %s not found", id)
	}
	return el, id, nil
}

// certificates decodes KeyInfo/X509Data; the first certificate is the signer
func certificates(sig *etree.Element) (*x509.Certificate, []*x509.Certificate, error) {
	elems := sig.FindElements("./KeyInfo/X509Data/X509Certificate")
	if len(elems) == 0 {
		return nil, nil, fmt.Errorf("no X509Certificate in signature")
	}
	certs := make([]*x509.Certificate, 0, len(elems))
	for _, el := range elems {
		der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(el.Text()), ""))
		if err != nil {
			return nil, nil, fmt.Errorf("decode certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs[0], certs[1:], nil
}

// signingTime prefers the SEFAZ receipt time over the emission time
func signingTime(root *etree.Element) (time.Time, bool) {
	for _, path := range []string{".//infProt/dhRecbto", ".//ide/dhEmi"} {
		el := root.FindElement(path)
		if el == nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(el.Text())); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func emitterCNPJ(root *etree.Element) string {
	el := root.FindElement(".//emit/CNPJ")
	if el == nil {
		return ""
	}
	cnpj := brdoc.OnlyDigits(el.Text())
	if len(cnpj) != 14 {
		return ""
	}
	return cnpj
}

func layoutOf(root *etree.Element) model.DocumentType {
	switch {
	case root.FindElement(".//infNFe") != nil:
		if mod := root.FindElement(".//infNFe/ide/mod"); mod != nil && strings.TrimSpace(mod.Text()) == "65" {
			return model.DocumentNFCe
		}
		return model.DocumentNFe
	case root.FindElement(".//infCte") != nil:
		return model.DocumentCTe
	case root.FindElement(".//infMDFe") != nil:
		return model.DocumentMDFe
	}
	return ""
}
