// Package xml reads Brazilian fiscal document XML (NFe/NFCe, CTe, MDFe) into
// a model.FiscalXML summary.
package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// Adapter parses one fiscal XML layout
type Adapter interface {
	Parse(ctx context.Context, r io.Reader) (*model.FiscalXML, error)

	// InfoGroup is the local name of the signed group (infNFe, infCte, ...)
	// that identifies the layout
	InfoGroup() string

	Layout() string
}

// Registry picks the adapter whose info group appears first in a document
type Registry struct {
	byGroup map[string]Adapter
	groups  []string
}

func NewRegistry() *Registry {
	r := &Registry{byGroup: make(map[string]Adapter)}
	for _, a := range []Adapter{NewNFeAdapter(), NewCTeAdapter(), NewMDFeAdapter()} {
		r.RegisterAdapter(a)
	}
	return r
}

// RegisterAdapter adds an adapter. One registered for an info group that is
// already known replaces the previous one.
func (r *Registry) RegisterAdapter(a Adapter) {
	if _, ok := r.byGroup[a.InfoGroup()]; !ok {
		r.groups = append(r.groups, a.InfoGroup())
	}
	r.byGroup[a.InfoGroup()] = a
}

// Detect scans start elements, ignoring namespace prefixes, until one names
// a registered info group.
func (r *Registry) Detect(content []byte) (Adapter, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, model.NewParseError("", "root", "malformed XML", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			if a, found := r.byGroup[se.Name.Local]; found {
				return a, nil
			}
		}
	}
	return nil, model.NewParseError("", "root", "unknown XML layout, expected NFe, CTe or MDFe", nil)
}

func (r *Registry) Parse(ctx context.Context, content []byte) (*model.FiscalXML, error) {
	adapter, err := r.Detect(content)
	if err != nil {
		return nil, err
	}
	return adapter.Parse(ctx, bytes.NewReader(content))
}

// GetAdapter returns the adapter registered under a layout name, or nil
func (r *Registry) GetAdapter(layout string) Adapter {
	for _, a := range r.byGroup {
		if a.Layout() == layout {
			return a
		}
	}
	return nil
}

// Layouts lists layout names in registration order
func (r *Registry) Layouts() []string {
	out := make([]string, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, r.byGroup[g].Layout())
	}
	return out
}
