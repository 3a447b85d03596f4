package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/catalog"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/store/storetest"
)

func TestClients(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	svc := catalog.NewService(db)

	c := &model.Client{Party: model.Party{
		Document: "11.222.333/0001-81",
		Name:     "Cliente Exemplo LTDA",
		Email:    " Compras@Exemplo.com.br ",
		CEP:      "01001-000",
		UF:       "sp",
	}}
	require.NoError(t, svc.CreateClient(ctx, c))
	assert.Equal(t, "11222333000181", c.Document)
	assert.Equal(t, "compras@exemplo.com.br", c.Email)
	assert.Equal(t, "SP", c.UF)

	dup := &model.Client{Party: model.Party{Document: "11222333000181", Name: "Outro"}}
	assert.ErrorIs(t, svc.CreateClient(ctx, dup), model.ErrConflict)

	bad := &model.Client{Party: model.Party{Document: "11222333000182", Name: "Inválido"}}
	assert.ErrorIs(t, svc.CreateClient(ctx, bad), model.ErrInvalid)

	page, err := svc.ListClients(ctx, repository.ListQuery{Search: "exemplo"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	c.Name = "Cliente Renomeado LTDA"
	updated, err := svc.UpdateClient(ctx, c.ID, c)
	require.NoError(t, err)
	assert.Equal(t, "Cliente Renomeado LTDA", updated.Name)

	require.NoError(t, db.Create(&model.Order{ClientID: c.ID, Status: model.OrderOpen}).Error)
	assert.ErrorIs(t, svc.DeleteClient(ctx, c.ID), model.ErrConflict)
	assert.ErrorIs(t, svc.DeleteClient(ctx, 999), model.ErrNotFound)
}

func TestSuppliers(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(storetest.New(t))

	sp := &model.Supplier{Party: model.Party{Document: "529.982.247-25", Name: "Fornecedor Pessoa Física"}}
	require.NoError(t, svc.CreateSupplier(ctx, sp))
	assert.Equal(t, "52998224725", sp.Document)

	got, err := svc.GetSupplier(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, sp.Name, got.Name)

	require.NoError(t, svc.DeleteSupplier(ctx, sp.ID))
	_, err = svc.GetSupplier(ctx, sp.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	svc := catalog.NewService(db)

	missing := uint(42)
	p := &model.Product{
		SKU: "CAF-500", Description: "Café torrado 500g", NCM: "09012100", CFOP: "5102", Unit: "UN",
		Price: decimal.RequireFromString("25.90"), TaxConfigID: &missing,
	}
	assert.ErrorIs(t, svc.CreateProduct(ctx, p), model.ErrInvalid)

	p.TaxConfigID = nil
	require.NoError(t, svc.CreateProduct(ctx, p))

	tests := []struct {
		name   string
		mutate func(p *model.Product)
	}{
		{"ncm length", func(p *model.Product) { p.NCM = "0901" }},
		{"cfop group", func(p *model.Product) { p.CFOP = "8102" }},
		{"negative price", func(p *model.Product) { p.Price = decimal.NewFromInt(-1) }},
		{"no unit", func(p *model.Product) { p.Unit = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := *p
			tt.mutate(&cp)
			_, err := svc.UpdateProduct(ctx, p.ID, &cp)
			assert.ErrorIs(t, err, model.ErrInvalid)
		})
	}

	page, err := svc.ListProducts(ctx, "09012100", repository.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	order := &model.Order{ClientID: 1, Status: model.OrderOpen, Items: []model.OrderItem{{
		LineItem: model.LineItem{ProductID: p.ID, Quantity: decimal.NewFromInt(1), UnitPrice: p.Price},
	}}}
	require.NoError(t, db.Create(order).Error)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, p.ID), model.ErrConflict)
}
