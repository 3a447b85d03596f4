package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/orders"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/store/storetest"
)

var today = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *orders.Service
	client  uint
	product uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New(t)

	client := &model.Client{Party: model.Party{Document: "11222333000181", Name: "Cliente Exemplo LTDA"}}
	require.NoError(t, db.Create(client).Error)
	product := &model.Product{
		SKU: "CAF-500", Description: "Café torrado 500g", NCM: "09012100", Unit: "UN",
		Price: decimal.RequireFromString("25.90"),
	}
	require.NoError(t, db.Create(product).Error)

	return &fixture{
		svc:     orders.NewService(db, orders.WithClock(func() time.Time { return today })),
		client:  client.ID,
		product: product.ID,
	}
}

func (f *fixture) line(qty, price, discount string) model.LineItem {
	li := model.LineItem{
		ProductID: f.product,
		Quantity:  decimal.RequireFromString(qty),
	}
	if price != "" {
		li.UnitPrice = decimal.RequireFromString(price)
	}
	if discount != "" {
		li.DiscountPercent = decimal.RequireFromString(discount)
	}
	return li
}

func TestCreateOrder_PricesFromCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o := &model.Order{
		ClientID: f.client,
		Items: []model.OrderItem{
			{LineItem: f.line("2", "", "")},
			{LineItem: f.line("1", "100.00", "10")},
		},
	}
	require.NoError(t, f.svc.CreateOrder(ctx, o))

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderOpen, got.Status)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Café torrado 500g", got.Items[0].Description)
	assert.True(t, decimal.RequireFromString("25.90").Equal(got.Items[0].UnitPrice))
	assert.Equal(t, "151.80", got.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", got.Discount.StringFixed(2))
	assert.Equal(t, "141.80", got.Total.StringFixed(2))
}

func TestCreateOrder_Rejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name  string
		order *model.Order
		want  error
	}{
		{"no items", &model.Order{ClientID: f.client}, model.ErrInvalid},
		{"unknown client", &model.Order{ClientID: 999, Items: []model.OrderItem{{LineItem: f.line("1", "", "")}}}, model.ErrNotFound},
		{"unknown product", &model.Order{ClientID: f.client, Items: []model.OrderItem{{LineItem: model.LineItem{ProductID: 999, Quantity: decimal.NewFromInt(1)}}}}, model.ErrNotFound},
		{"zero quantity", &model.Order{ClientID: f.client, Items: []model.OrderItem{{LineItem: f.line("0", "", "")}}}, model.ErrInvalid},
		{"discount over 100", &model.Order{ClientID: f.client, Items: []model.OrderItem{{LineItem: f.line("1", "", "120")}}}, model.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.svc.CreateOrder(ctx, tt.order), tt.want)
		})
	}
}

func TestUpdateOrder_ReplacesItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o := &model.Order{ClientID: f.client, Items: []model.OrderItem{{LineItem: f.line("1", "", "")}, {LineItem: f.line("3", "", "")}}}
	require.NoError(t, f.svc.CreateOrder(ctx, o))

	updated, err := f.svc.UpdateOrder(ctx, o.ID, &model.Order{
		ClientID: f.client,
		Notes:    "entregar pela manhã",
		Items:    []model.OrderItem{{LineItem: f.line("4", "10.00", "")}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "40.00", updated.Total.StringFixed(2))
	assert.Equal(t, "entregar pela manhã", updated.Notes)

	_, err = f.svc.SetOrderStatus(ctx, o.ID, model.OrderInvoiced)
	require.NoError(t, err)

	_, err = f.svc.UpdateOrder(ctx, o.ID, &model.Order{ClientID: f.client, Items: []model.OrderItem{{LineItem: f.line("1", "", "")}}})
	assert.ErrorIs(t, err, model.ErrConflict)
	_, err = f.svc.SetOrderStatus(ctx, o.ID, model.OrderCancelled)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.ErrorIs(t, f.svc.DeleteOrder(ctx, o.ID), model.ErrConflict)
}

func TestListOrders_Filters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.CreateOrder(ctx, &model.Order{ClientID: f.client, Items: []model.OrderItem{{LineItem: f.line("1", "", "")}}}))
	}
	page, err := f.svc.ListOrders(ctx, f.client, "", repository.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)

	_, err = f.svc.SetOrderStatus(ctx, page.Items[0].ID, model.OrderCancelled)
	require.NoError(t, err)

	page, err = f.svc.ListOrders(ctx, 0, model.OrderCancelled, repository.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestConvertToOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	valid := today.AddDate(0, 0, 7)
	q := &model.Quote{
		ClientID:   f.client,
		ValidUntil: &valid,
		Items:      []model.QuoteItem{{LineItem: f.line("2", "", "5")}},
	}
	require.NoError(t, f.svc.CreateQuote(ctx, q))
	assert.Equal(t, model.QuoteDraft, q.Status)

	order, err := f.svc.ConvertToOrder(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, order.QuoteID)
	assert.Equal(t, q.ID, *order.QuoteID)
	assert.Equal(t, model.OrderOpen, order.Status)
	assert.True(t, q.Total.Equal(order.Total))
	require.Len(t, order.Items, 1)

	got, err := f.svc.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteConverted, got.Status)

	_, err = f.svc.ConvertToOrder(ctx, q.ID)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = f.svc.UpdateQuote(ctx, q.ID, &model.Quote{ClientID: f.client, Items: []model.QuoteItem{{LineItem: f.line("1", "", "")}}})
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.ErrorIs(t, f.svc.DeleteQuote(ctx, q.ID), model.ErrConflict)
}

func TestConvertToOrder_Refused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expired := today.AddDate(0, 0, -1)
	old := &model.Quote{ClientID: f.client, ValidUntil: &expired, Items: []model.QuoteItem{{LineItem: f.line("1", "", "")}}}
	require.NoError(t, f.svc.CreateQuote(ctx, old))
	_, err := f.svc.ConvertToOrder(ctx, old.ID)
	assert.ErrorIs(t, err, model.ErrConflict)

	rejected := &model.Quote{ClientID: f.client, Items: []model.QuoteItem{{LineItem: f.line("1", "", "")}}}
	require.NoError(t, f.svc.CreateQuote(ctx, rejected))
	_, err = f.svc.UpdateQuote(ctx, rejected.ID, &model.Quote{
		ClientID: f.client, Status: model.QuoteRejected,
		Items: []model.QuoteItem{{LineItem: f.line("1", "", "")}},
	})
	require.NoError(t, err)
	_, err = f.svc.ConvertToOrder(ctx, rejected.ID)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = f.svc.ConvertToOrder(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
