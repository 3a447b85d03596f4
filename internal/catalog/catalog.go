// Package catalog keeps the registration data used on documents: clients,
// suppliers and products.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

// Service manages clients, suppliers and products
type Service struct {
	db        *gorm.DB
	clients   *repository.Repository[model.Client]
	suppliers *repository.Repository[model.Supplier]
	products  *repository.Repository[model.Product]
	logger    *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates the catalog service
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		clients:   repository.New[model.Client](db, "client", repository.WithSearch("document", "name", "trade_name")),
		suppliers: repository.New[model.Supplier](db, "supplier", repository.WithSearch("document", "name", "trade_name")),
		products:  repository.New[model.Product](db, "product", repository.WithSearch("sku", "description", "ncm", "gtin")),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListClients returns a page of clients
func (s *Service) ListClients(ctx context.Context, q repository.ListQuery) (*repository.Page[model.Client], error) {
	return s.clients.List(ctx, q)
}

// GetClient returns one client
func (s *Service) GetClient(ctx context.Context, id uint) (*model.Client, error) {
	return s.clients.Get(ctx, id)
}

// CreateClient registers a client
func (s *Service) CreateClient(ctx context.Context, c *model.Client) error {
	c.Normalize()
	if err := validate.Struct(c); err != nil {
		return err
	}
	c.ID = 0
	return s.clients.Create(ctx, c)
}

// UpdateClient replaces a client's data
func (s *Service) UpdateClient(ctx context.Context, id uint, c *model.Client) (*model.Client, error) {
	c.Normalize()
	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	return s.clients.Update(ctx, id, c)
}

// DeleteClient removes a client without orders or quotes
func (s *Service) DeleteClient(ctx context.Context, id uint) error {
	if _, err := s.clients.Get(ctx, id); err != nil {
		return err
	}
	for _, ref := range []interface{}{&model.Order{}, &model.Quote{}} {
		used, err := s.referenced(ctx, ref, "client_id", id)
		if err != nil {
			return err
		}
		if used {
			return model.NewConflictError("client", "client has orders or quotes")
		}
	}
	return s.clients.Delete(ctx, id)
}

// ListSuppliers returns a page of suppliers
func (s *Service) ListSuppliers(ctx context.Context, q repository.ListQuery) (*repository.Page[model.Supplier], error) {
	return s.suppliers.List(ctx, q)
}

// GetSupplier returns one supplier
func (s *Service) GetSupplier(ctx context.Context, id uint) (*model.Supplier, error) {
	return s.suppliers.Get(ctx, id)
}

// CreateSupplier registers a supplier
func (s *Service) CreateSupplier(ctx context.Context, sp *model.Supplier) error {
	sp.Normalize()
	if err := validate.Struct(sp); err != nil {
		return err
	}
	sp.ID = 0
	return s.suppliers.Create(ctx, sp)
}

// UpdateSupplier replaces a supplier's data
func (s *Service) UpdateSupplier(ctx context.Context, id uint, sp *model.Supplier) (*model.Supplier, error) {
	sp.Normalize()
	if err := validate.Struct(sp); err != nil {
		return nil, err
	}
	return s.suppliers.Update(ctx, id, sp)
}

// DeleteSupplier removes a supplier
func (s *Service) DeleteSupplier(ctx context.Context, id uint) error {
	return s.suppliers.Delete(ctx, id)
}

// ListProducts returns a page of products, optionally of one NCM
func (s *Service) ListProducts(ctx context.Context, ncm string, q repository.ListQuery) (*repository.Page[model.Product], error) {
	if ncm != "" {
		q.Filters = map[string]interface{}{"ncm": ncm}
	}
	return s.products.List(ctx, q)
}

// GetProduct returns one product
func (s *Service) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	return s.products.Get(ctx, id)
}

// CreateProduct registers a product
func (s *Service) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.checkProduct(ctx, p); err != nil {
		return err
	}
	p.ID = 0
	if err := s.products.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info("product created", zap.Uint("product_id", p.ID), zap.String("sku", p.SKU))
	return nil
}

// UpdateProduct replaces a product's data
func (s *Service) UpdateProduct(ctx context.Context, id uint, p *model.Product) (*model.Product, error) {
	if err := s.checkProduct(ctx, p); err != nil {
		return nil, err
	}
	return s.products.Update(ctx, id, p)
}

// DeleteProduct removes a product no order or quote line uses
func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	if _, err := s.products.Get(ctx, id); err != nil {
		return err
	}
	for _, ref := range []interface{}{&model.OrderItem{}, &model.QuoteItem{}} {
		used, err := s.referenced(ctx, ref, "product_id", id)
		if err != nil {
			return err
		}
		if used {
			return model.NewConflictError("product", "product is used by orders or quotes")
		}
	}
	return s.products.Delete(ctx, id)
}

func (s *Service) checkProduct(ctx context.Context, p *model.Product) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	if p.TaxConfigID == nil {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.TaxConfig{}).Where("id = ?", *p.TaxConfigID).Count(&n).Error; err != nil {
		return fmt.Errorf("check tax config: %w", err)
	}
	if n == 0 {
		return model.NewValidationError("tax_config_id", *p.TaxConfigID, "exists", "tax config does not exist")
	}
	return nil
}

func (s *Service) referenced(ctx context.Context, table interface{}, column string, id uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(table).Where(column+" = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count references: %w", err)
	}
	return n > 0, nil
}
