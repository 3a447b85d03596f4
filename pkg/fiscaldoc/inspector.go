package fiscaldoc

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/documents"
	"github.com/rezonia/fiscal-manager/internal/model"
	xmlparser "github.com/rezonia/fiscal-manager/internal/parser/xml"
	"github.com/rezonia/fiscal-manager/internal/signature"
	"github.com/rezonia/fiscal-manager/internal/signature/trust"
)

// Options configures an Inspector
type Options struct {
	// TrustRootsPath is a PEM file or directory with the ICP-Brasil chain.
	// Without it certificate chains do not validate.
	TrustRootsPath string
	// XSDPath enables schema validation, e.g. procNFe_v4.00.xsd
	XSDPath string
	// VerifySignatures adds the signature check to Inspect
	VerifySignatures bool
	// OCSPSoftFail treats unreachable OCSP responders as warnings
	OCSPSoftFail bool

	Logger *zap.Logger
}

// Inspector parses and checks fiscal XML documents
type Inspector struct {
	docs     *documents.Service
	verifier *signature.Verifier
	schema   *xmlparser.Schema
}

// NewInspector loads the trust roots and the schema named in opts
func NewInspector(opts Options) (*Inspector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var trustOpts []trust.Option
	if opts.OCSPSoftFail {
		trustOpts = append(trustOpts, trust.WithSoftFail())
	}
	roots, err := trust.Load(opts.TrustRootsPath, trustOpts...)
	if err != nil {
		return nil, err
	}

	in := &Inspector{verifier: signature.NewVerifier(roots, signature.WithLogger(logger))}
	docOpts := []documents.Option{documents.WithLogger(logger)}
	if opts.VerifySignatures {
		docOpts = append(docOpts, documents.WithVerifier(in.verifier))
	}
	if opts.XSDPath != "" {
		if in.schema, err = xmlparser.LoadSchema(opts.XSDPath); err != nil {
			return nil, err
		}
		docOpts = append(docOpts, documents.WithSchema(in.schema))
	}
	// InspectXML never reaches the database
	in.docs = documents.NewService(nil, docOpts...)
	return in, nil
}

// Inspect parses a fiscal XML. Schema and signature problems are reported
// in the Inspection; only unreadable or malformed documents return an error.
func (in *Inspector) Inspect(ctx context.Context, r io.Reader) (*Inspection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &model.ParseError{Message: "failed to read input", Cause: err}
	}
	return in.docs.InspectXML(ctx, data)
}

// Verify checks the XML-DSig signature of a fiscal XML
func (in *Inspector) Verify(ctx context.Context, r io.Reader) (*SignatureResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &model.ParseError{Message: "failed to read input", Cause: err}
	}
	return in.verifier.Verify(ctx, data)
}

// InspectBatch inspects inputs concurrently. Results keep the input order;
// a failed input leaves a nil entry and its error is joined into the returned one.
func (in *Inspector) InspectBatch(ctx context.Context, inputs []io.Reader) ([]*Inspection, error) {
	results := make([]*Inspection, len(inputs))
	errCh := make(chan error, len(inputs))

	for i, input := range inputs {
		go func(idx int, r io.Reader) {
			result, err := in.Inspect(ctx, r)
			if err != nil {
				errCh <- err
				return
			}
			results[idx] = result
			errCh <- nil
		}(i, input)
	}

	var errs []error
	for range inputs {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// Close releases the schema
func (in *Inspector) Close() {
	if in.schema != nil {
		in.schema.Close()
	}
}
