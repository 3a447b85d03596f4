package xml

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// SchemaError lists the XSD violations of a document
type SchemaError struct {
	Messages []string
}

func (e *SchemaError) Error() string {
	return "xsd validation failed: " + strings.Join(e.Messages, "; ")
}

// Is makes schema errors match model.ErrInvalid
func (e *SchemaError) Is(target error) bool {
	return target == model.ErrInvalid
}

var libxml = struct {
	sync.Mutex
	refs int
}{}

// Schema validates documents against an XSD such as procNFe_v4.00.xsd.
// libxml2 is initialised on first load and released when the last schema closes.
type Schema struct {
	path    string
	mu      sync.Mutex
	handler *xsdvalidate.XsdHandler
}

// LoadSchema parses the XSD at path; includes are resolved relative to it
func LoadSchema(path string) (*Schema, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("xsd %s: %w", path, err)
	}

	libxml.Lock()
	if libxml.refs == 0 {
		xsdvalidate.Init()
	}
	libxml.refs++
	libxml.Unlock()

	handler, err := xsdvalidate.NewXsdHandlerUrl(path, xsdvalidate.ParsErrDefault)
	if err != nil {
		release()
		return nil, fmt.Errorf("load xsd %s: %w", path, err)
	}
	return &Schema{path: path, handler: handler}, nil
}

// Path returns the schema location
func (s *Schema) Path() string {
	return s.path
}

// Validate checks data against the schema
func (s *Schema) Validate(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return errors.New("schema closed")
	}

	err := s.handler.ValidateMem(data, xsdvalidate.ValidErrDefault)
	if err == nil {
		return nil
	}
	var verr xsdvalidate.ValidationError
	if errors.As(err, &verr) {
		msgs := make([]string, 0, len(verr.Errors))
		for _, e := range verr.Errors {
			msgs = append(msgs, fmt.Sprintf("line %d: %s", e.Line, strings.TrimSpace(e.Message)))
		}
		if len(msgs) == 0 {
			msgs = append(msgs, verr.Error())
		}
		return &SchemaError{Messages: msgs}
	}
	return &SchemaError{Messages: []string{err.Error()}}
}

// Close frees the parsed schema
func (s *Schema) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return
	}
	s.handler.Free()
	s.handler = nil
	release()
}

func release() {
	libxml.Lock()
	defer libxml.Unlock()
	libxml.refs--
	if libxml.refs == 0 {
		xsdvalidate.Cleanup()
	}
}
