// Package orders handles sales orders and quotes (orçamentos), including
// converting an accepted quote into an order.
package orders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

// Service manages orders and quotes
type Service struct {
	db     *gorm.DB
	orders *repository.Repository[model.Order]
	quotes *repository.Repository[model.Quote]
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the time used to check quote validity
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the order service
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		orders: repository.New[model.Order](db, "order", repository.WithPreload("Items"), repository.WithOrder("id DESC")),
		quotes: repository.New[model.Quote](db, "quote", repository.WithPreload("Items"), repository.WithOrder("id DESC")),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListOrders returns a page of orders, optionally for one client
func (s *Service) ListOrders(ctx context.Context, clientID uint, status model.OrderStatus, q repository.ListQuery) (*repository.Page[model.Order], error) {
	q.Filters = filters(clientID, string(status))
	return s.orders.List(ctx, q)
}

// GetOrder returns an order with its items
func (s *Service) GetOrder(ctx context.Context, id uint) (*model.Order, error) {
	return s.orders.Get(ctx, id)
}

// CreateOrder prices and stores a new open order
func (s *Service) CreateOrder(ctx context.Context, o *model.Order) error {
	o.ID = 0
	o.Status = model.OrderOpen
	o.QuoteID = nil
	if err := s.prepare(ctx, o.ClientID, orderLines(o)); err != nil {
		return err
	}
	o.CalculateTotals()
	if err := s.orders.Create(ctx, o); err != nil {
		return err
	}
	s.logger.Info("order created", zap.Uint("order_id", o.ID), zap.String("total", o.Total.StringFixed(2)))
	return nil
}

// UpdateOrder replaces the header and items of an open order
func (s *Service) UpdateOrder(ctx context.Context, id uint, o *model.Order) (*model.Order, error) {
	existing, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.OrderOpen {
		return nil, model.NewConflictError("order", fmt.Sprintf("%s orders cannot be changed", existing.Status))
	}
	if err := s.prepare(ctx, o.ClientID, orderLines(o)); err != nil {
		return nil, err
	}
	o.CalculateTotals()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&model.OrderItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		for i := range o.Items {
			o.Items[i].ID = 0
			o.Items[i].OrderID = id
		}
		if err := tx.Create(&o.Items).Error; err != nil {
			return fmt.Errorf("create items: %w", err)
		}
		return tx.Model(existing).
			Select("client_id", "notes", "subtotal", "discount", "total", "updated_at").
			Updates(map[string]interface{}{
				"client_id":  o.ClientID,
				"notes":      o.Notes,
				"subtotal":   o.Subtotal,
				"discount":   o.Discount,
				"total":      o.Total,
				"updated_at": s.now().UTC(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, id)
}

// SetOrderStatus marks an open order invoiced or cancelled
func (s *Service) SetOrderStatus(ctx context.Context, id uint, status model.OrderStatus) (*model.Order, error) {
	if status != model.OrderInvoiced && status != model.OrderCancelled {
		return nil, model.NewValidationError("status", status, "oneof", "must be invoiced or cancelled")
	}
	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.OrderOpen).
		Updates(map[string]interface{}{"status": status, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("update order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := s.orders.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, model.NewConflictError("order", fmt.Sprintf("order is already %s", existing.Status))
	}
	return s.orders.Get(ctx, id)
}

// DeleteOrder removes an order that was not invoiced
func (s *Service) DeleteOrder(ctx context.Context, id uint) error {
	existing, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == model.OrderInvoiced {
		return model.NewConflictError("order", "invoiced orders cannot be deleted")
	}
	return s.orders.Delete(ctx, id)
}

// ListQuotes returns a page of quotes, optionally for one client
func (s *Service) ListQuotes(ctx context.Context, clientID uint, status model.QuoteStatus, q repository.ListQuery) (*repository.Page[model.Quote], error) {
	q.Filters = filters(clientID, string(status))
	return s.quotes.List(ctx, q)
}

// GetQuote returns a quote with its items
func (s *Service) GetQuote(ctx context.Context, id uint) (*model.Quote, error) {
	return s.quotes.Get(ctx, id)
}

// CreateQuote prices and stores a draft quote
func (s *Service) CreateQuote(ctx context.Context, q *model.Quote) error {
	q.ID = 0
	if q.Status != model.QuoteSent {
		q.Status = model.QuoteDraft
	}
	if err := s.prepare(ctx, q.ClientID, quoteLines(q)); err != nil {
		return err
	}
	q.CalculateTotals()
	return s.quotes.Create(ctx, q)
}

// UpdateQuote replaces a quote that was not converted
func (s *Service) UpdateQuote(ctx context.Context, id uint, q *model.Quote) (*model.Quote, error) {
	existing, err := s.quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == model.QuoteConverted {
		return nil, model.NewConflictError("quote", "converted quotes cannot be changed")
	}
	switch q.Status {
	case "":
		q.Status = existing.Status
	case model.QuoteConverted:
		return nil, model.NewValidationError("status", q.Status, "oneof", "use convert to turn a quote into an order")
	}
	if err := s.prepare(ctx, q.ClientID, quoteLines(q)); err != nil {
		return nil, err
	}
	q.CalculateTotals()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("quote_id = ?", id).Delete(&model.QuoteItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		for i := range q.Items {
			q.Items[i].ID = 0
			q.Items[i].QuoteID = id
		}
		if err := tx.Create(&q.Items).Error; err != nil {
			return fmt.Errorf("create items: %w", err)
		}
		return tx.Model(existing).
			Select("client_id", "status", "valid_until", "notes", "subtotal", "discount", "total", "updated_at").
			Updates(map[string]interface{}{
				"client_id":   q.ClientID,
				"status":      q.Status,
				"valid_until": q.ValidUntil,
				"notes":       q.Notes,
				"subtotal":    q.Subtotal,
				"discount":    q.Discount,
				"total":       q.Total,
				"updated_at":  s.now().UTC(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.quotes.Get(ctx, id)
}

// DeleteQuote removes a quote that was not converted
func (s *Service) DeleteQuote(ctx context.Context, id uint) error {
	existing, err := s.quotes.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == model.QuoteConverted {
		return model.NewConflictError("quote", "converted quotes cannot be deleted")
	}
	return s.quotes.Delete(ctx, id)
}

// ConvertToOrder creates an open order from a quote and marks the quote
// converted. A quote converts at most once.
func (s *Service) ConvertToOrder(ctx context.Context, id uint) (*model.Order, error) {
	quote, err := s.quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case quote.Status == model.QuoteConverted:
		return nil, model.NewConflictError("quote", "already converted")
	case quote.Status == model.QuoteRejected:
		return nil, model.NewConflictError("quote", "rejected quotes cannot be converted")
	case quote.Expired(s.now()):
		return nil, model.NewConflictError("quote", "quote validity has expired")
	}

	order := quote.ToOrder()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the status guard decides between concurrent conversions
		res := tx.Model(&model.Quote{}).
			Where("id = ? AND status = ?", id, quote.Status).
			Updates(map[string]interface{}{"status": model.QuoteConverted, "updated_at": s.now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("mark quote converted: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return model.NewConflictError("quote", "already converted")
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quote converted", zap.Uint("quote_id", id), zap.Uint("order_id", order.ID))
	return s.orders.Get(ctx, order.ID)
}

// prepare validates the lines and fills blank descriptions and prices from the catalog
func (s *Service) prepare(ctx context.Context, clientID uint, lines []*model.LineItem) error {
	if len(lines) == 0 {
		return model.NewValidationError("items", nil, "min", "at least one item is required")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Client{}).Where("id = ?", clientID).Count(&n).Error; err != nil {
		return fmt.Errorf("check client: %w", err)
	}
	if n == 0 {
		return model.NewNotFoundError("client", fmt.Sprint(clientID))
	}

	ids := make([]uint, 0, len(lines))
	for _, li := range lines {
		if err := validate.Struct(li); err != nil {
			return err
		}
		ids = append(ids, li.ProductID)
	}
	var products []model.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uint]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, li := range lines {
		p, ok := byID[li.ProductID]
		if !ok {
			return model.NewNotFoundError("product", fmt.Sprint(li.ProductID))
		}
		if li.Description == "" {
			li.Description = p.Description
		}
		if li.UnitPrice.IsZero() {
			li.UnitPrice = p.Price
		}
	}
	return nil
}

func orderLines(o *model.Order) []*model.LineItem {
	lines := make([]*model.LineItem, len(o.Items))
	for i := range o.Items {
		lines[i] = &o.Items[i].LineItem
	}
	return lines
}

func quoteLines(q *model.Quote) []*model.LineItem {
	lines := make([]*model.LineItem, len(q.Items))
	for i := range q.Items {
		lines[i] = &q.Items[i].LineItem
	}
	return lines
}

func filters(clientID uint, status string) map[string]interface{} {
	f := map[string]interface{}{}
	if clientID != 0 {
		f["client_id"] = clientID
	}
	if status != "" {
		f["status"] = status
	}
	return f
}
