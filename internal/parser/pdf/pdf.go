// Package pdf checks DANFE/DACTE/DAMDFE printouts before they are attached to a document.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// MaxSize is the largest accepted attachment
const MaxSize = 10 << 20

var headerRE = regexp.MustCompile(`^%PDF-(\d\.\d)`)

// Info describes a validated PDF
type Info struct {
	Version string `json:"version"`
	Pages   int    `json:"pages"`
	Size    int    `json:"size"`
}

// Inspector validates PDFs with pdfcpu
type Inspector struct {
	conf *pdfmodel.Configuration
}

var disableConfig sync.Once

// NewInspector creates an inspector using pdfcpu's relaxed validation.
// pdfcpu's on-disk configuration directory is disabled.
func NewInspector() *Inspector {
	disableConfig.Do(func() {
		pdfmodel.ConfigPath = "disable"
	})
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return &Inspector{conf: conf}
}

// Inspect validates data and counts its pages
func (i *Inspector) Inspect(ctx context.Context, data []byte) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, model.NewValidationError("pdf", nil, "required", "file is empty")
	}
	if len(data) > MaxSize {
		return nil, model.NewValidationError("pdf", len(data), "max", fmt.Sprintf("file exceeds %d bytes", MaxSize))
	}
	m := headerRE.FindSubmatch(data)
	if m == nil {
		return nil, model.NewValidationError("pdf", nil, "format", "missing %PDF header")
	}

	if err := api.Validate(bytes.NewReader(data), i.conf); err != nil {
		return nil, model.NewValidationError("pdf", nil, "format", fmt.Sprintf("invalid PDF: %v", err))
	}
	pages, err := api.PageCount(bytes.NewReader(data), i.conf)
	if err != nil {
		return nil, model.NewValidationError("pdf", nil, "format", fmt.Sprintf("count pages: %v", err))
	}
	if pages < 1 {
		return nil, model.NewValidationError("pdf", pages, "min", "PDF has no pages")
	}
	return &Info{Version: string(m[1]), Pages: pages, Size: len(data)}, nil
}
