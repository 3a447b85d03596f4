// Package taxconfig stores the tax situations and rates applied to product
// lines and computes the resulting ICMS, PIS, COFINS and IPI.
package taxconfig

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dec "github.com/rezonia/fiscal-manager/internal/decimal"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

// CRT values (código de regime tributário)
const (
	RegimeSimples        = 1
	RegimeSimplesExcesso = 2
	RegimeNormal         = 3
)

// Validate checks the tags and the rules that span fields: a config carries
// exactly one of ICMS CST and CSOSN, and CSOSN belongs to Simples Nacional only.
func Validate(c *model.TaxConfig) error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch {
	case c.ICMSCST == "" && c.CSOSN == "":
		return model.NewValidationError("icms_cst", nil, "required_without", "one of icms_cst or csosn is required")
	case c.ICMSCST != "" && c.CSOSN != "":
		return model.NewValidationError("csosn", c.CSOSN, "excluded_with", "icms_cst and csosn are mutually exclusive")
	case c.CSOSN != "" && c.TaxRegime != RegimeSimples:
		return model.NewValidationError("csosn", c.CSOSN, "regime", "csosn applies to tax regime 1 only")
	case c.ICMSCST != "" && c.TaxRegime == RegimeSimples:
		return model.NewValidationError("icms_cst", c.ICMSCST, "regime", "tax regime 1 uses csosn")
	}
	return nil
}

// Apply computes the taxes due on amount. ICMS applies the base reduction;
// IPI is added on top of the amount.
func Apply(c *model.TaxConfig, amount decimal.Decimal) model.TaxBreakdown {
	b := model.TaxBreakdown{Base: dec.RoundBRL(amount)}
	if c.CSOSN == "" || c.CSOSN == "900" {
		b.ICMS = dec.ReducedBaseTax(b.Base, c.ICMSRate, c.ICMSBaseReduction)
	} else {
		b.ICMS = dec.Zero
	}
	b.PIS = dec.Percentage(b.Base, c.PISRate)
	b.COFINS = dec.Percentage(b.Base, c.COFINSRate)
	b.IPI = dec.Percentage(b.Base, c.IPIRate)
	b.Total = b.Base.Add(b.IPI)
	return b
}

// Service is the tax configuration store
type Service struct {
	repo *repository.Repository[model.TaxConfig]
}

// NewService creates the service
func NewService(db *gorm.DB) *Service {
	return &Service{
		repo: repository.New[model.TaxConfig](db, "tax config",
			repository.WithSearch("name", "cfop"),
			repository.WithOrder("name")),
	}
}

// List returns a page of configs
func (s *Service) List(ctx context.Context, q repository.ListQuery) (*repository.Page[model.TaxConfig], error) {
	return s.repo.List(ctx, q)
}

// Get returns one config
func (s *Service) Get(ctx context.Context, id uint) (*model.TaxConfig, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and stores c
func (s *Service) Create(ctx context.Context, c *model.TaxConfig) error {
	if err := Validate(c); err != nil {
		return err
	}
	c.ID = 0
	return s.repo.Create(ctx, c)
}

// Update validates and replaces the config with id
func (s *Service) Update(ctx context.Context, id uint, c *model.TaxConfig) (*model.TaxConfig, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	c.ID = id
	return s.repo.Update(ctx, id, c)
}

// Delete removes a config no product refers to
func (s *Service) Delete(ctx context.Context, id uint) error {
	var n int64
	if err := s.repo.DB(ctx).Model(&model.Product{}).Where("tax_config_id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if n > 0 {
		return model.NewConflictError("tax config", fmt.Sprintf("used by %d products", n))
	}
	return s.repo.Delete(ctx, id)
}

// Calculate applies the config with id to amount
func (s *Service) Calculate(ctx context.Context, id uint, amount decimal.Decimal) (*model.TaxBreakdown, error) {
	if amount.IsNegative() {
		return nil, model.NewValidationError("amount", amount.String(), "gte", "must not be negative")
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b := Apply(c, amount)
	return &b, nil
}
