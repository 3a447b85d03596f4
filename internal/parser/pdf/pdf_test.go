package pdf_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/parser/pdf"
	"github.com/rezonia/fiscal-manager/internal/parser/pdf/pdftest"
)

func TestInspect(t *testing.T) {
	info, err := pdf.NewInspector().Inspect(context.Background(), pdftest.Minimal(2))
	require.NoError(t, err)
	assert.Equal(t, 2, info.Pages)
	assert.Equal(t, "1.4", info.Version)
	assert.Positive(t, info.Size)
}

func TestInspect_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("<nfeProc/>")},
		{"truncated", pdftest.Minimal(1)[:40]},
		{"too large", append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{' '}, pdf.MaxSize)...)},
	}
	inspector := pdf.NewInspector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inspector.Inspect(context.Background(), tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalid)
		})
	}
}
