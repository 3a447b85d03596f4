package seed_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/seed"
	"github.com/rezonia/fiscal-manager/internal/store/storetest"
)

func TestSeed_Embedded(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	s := seed.New(db)

	results, err := s.Seed(ctx)
	require.NoError(t, err)
	require.Len(t, results, len(s.Tables()))
	for _, r := range results {
		assert.False(t, r.Skipped, r.Table)
		assert.Positive(t, r.Loaded, r.Table)
	}

	var states int64
	require.NoError(t, db.Model(&model.State{}).Count(&states).Error)
	assert.Equal(t, int64(27), states)

	var sp model.Municipality
	require.NoError(t, db.First(&sp, 3550308).Error)
	assert.Equal(t, "São Paulo", sp.Name)
	assert.Equal(t, "sao paulo", sp.SearchName)

	// second run leaves populated tables alone
	results, err = s.Seed(ctx)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Skipped, r.Table)
	}
}

func TestSeed_OnlyAndUnknownTable(t *testing.T) {
	ctx := context.Background()
	s := seed.New(storetest.New(t))

	results, err := s.Seed(ctx, seed.CSOSNs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 10, results[0].Loaded)

	_, err = s.Seed(ctx, "planets")
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestSeed_ForceUpdatesFromDirectory(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	_, err := seed.New(db).Seed(ctx, seed.PaymentMethods)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payment_methods.json"),
		[]byte(`[{"code":"17","description":"PIX"}]`), 0o644))

	results, err := seed.New(db, seed.WithSource(seed.Dir(dir))).Seed(ctx, seed.PaymentMethods)
	require.NoError(t, err)
	assert.True(t, results[0].Skipped)

	_, err = seed.New(db, seed.WithSource(seed.Dir(dir)), seed.WithForce(true)).Seed(ctx, seed.PaymentMethods)
	require.NoError(t, err)
	var pix model.PaymentMethod
	require.NoError(t, db.First(&pix, "code = ?", "17").Error)
	assert.Equal(t, "PIX", pix.Description)
}

func TestSeed_RemoteSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ref/states.json":
			_, _ = w.Write([]byte(`[{"code":35,"uf":"SP","name":"São Paulo"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s := seed.New(storetest.New(t), seed.WithSource(seed.ParseSource(srv.URL+"/ref/")))

	results, err := s.Seed(ctx, seed.States)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Loaded)

	_, err = s.Seed(ctx, seed.CFOPs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestImportMunicipalitiesCSV(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)

	csv := "codigo;nome;uf\n3530706;Mogi Guaçu;SP\n3549904;São José dos Campos;sp\n"
	var latin1 bytes.Buffer
	w := charmap.ISO8859_1.NewEncoder().Writer(&latin1)
	_, err := w.Write([]byte(csv))
	require.NoError(t, err)

	n, err := seed.ImportMunicipalitiesCSV(ctx, db, &latin1, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var m model.Municipality
	require.NoError(t, db.First(&m, 3530706).Error)
	assert.Equal(t, "Mogi Guaçu", m.Name)
	assert.Equal(t, "mogi guacu", m.SearchName)

	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"missing column", "codigo;nome\n3530706;Mogi Guaçu\n"},
		{"short code", "codigo;nome;uf\n353;Mogi;SP\n"},
		{"unknown uf", "codigo;nome;uf\n3530706;Mogi;XX\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seed.ImportMunicipalitiesCSV(ctx, db, strings.NewReader(tt.data), false)
			assert.ErrorIs(t, err, model.ErrInvalid)
		})
	}
}
