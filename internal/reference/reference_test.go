package reference_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/reference"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/seed"
	"github.com/rezonia/fiscal-manager/internal/store/storetest"
)

func newService(t *testing.T) *reference.Service {
	t.Helper()
	db := storetest.New(t)
	_, err := seed.New(db).Seed(context.Background())
	require.NoError(t, err)
	return reference.NewService(db)
}

func TestMunicipalities_AccentInsensitive(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	tests := []struct {
		search string
		uf     string
		want   []string
	}{
		{"sao jose", "", []string{"São José dos Campos"}},
		{"SÃO", "SP", []string{"São José dos Campos", "São Paulo"}},
		{"sao", "MA", []string{"São Luís"}},
		{"goiania", "", []string{"Goiânia"}},
		{"recife", "SP", nil},
	}
	for _, tt := range tests {
		t.Run(tt.search+"/"+tt.uf, func(t *testing.T) {
			page, err := svc.Municipalities(ctx, tt.uf, repository.ListQuery{Search: tt.search})
			require.NoError(t, err)
			var names []string
			for _, m := range page.Items {
				names = append(names, m.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	states, err := svc.States(ctx)
	require.NoError(t, err)
	require.Len(t, states, 27)
	assert.Equal(t, 11, states[0].Code)

	sp, err := svc.State(ctx, "sp")
	require.NoError(t, err)
	assert.Equal(t, 35, sp.Code)

	m, err := svc.Municipality(ctx, 5300108)
	require.NoError(t, err)
	assert.Equal(t, "DF", m.UF)

	cfop, err := svc.CFOP(ctx, "5102")
	require.NoError(t, err)
	assert.Contains(t, cfop.Description, "Venda de mercadoria")

	cfops, err := svc.CFOPs(ctx, repository.ListQuery{Search: "610"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), cfops.Total)

	ncm, err := svc.NCM(ctx, "0901.21.00")
	require.NoError(t, err)
	assert.Contains(t, ncm.Description, "Café")

	csts, err := svc.CSTs(ctx)
	require.NoError(t, err)
	assert.Len(t, csts, 15)

	csosns, err := svc.CSOSNs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "101", csosns[0].Code)

	pays, err := svc.PaymentMethods(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, pays)

	_, err = svc.CFOP(ctx, "9999")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = svc.State(ctx, "XX")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
