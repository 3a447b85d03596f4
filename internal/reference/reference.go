// Package reference serves the read-only geographic and fiscal tables:
// states, municipalities, CFOP, CST, CSOSN, NCM and payment methods.
package reference

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
)

// Service reads the reference tables
type Service struct {
	states         *repository.Repository[model.State]
	municipalities *repository.Repository[model.Municipality]
	cfops          *repository.Repository[model.CFOP]
	csts           *repository.Repository[model.CST]
	csosns         *repository.Repository[model.CSOSN]
	ncms           *repository.Repository[model.NCM]
	payments       *repository.Repository[model.PaymentMethod]
}

// NewService creates the reference service
func NewService(db *gorm.DB) *Service {
	return &Service{
		states: repository.New[model.State](db, "state",
			repository.WithPrimaryKey("code")),
		municipalities: repository.New[model.Municipality](db, "municipality",
			repository.WithPrimaryKey("code"),
			repository.WithSearch("search_name"),
			repository.WithOrder("search_name")),
		cfops: repository.New[model.CFOP](db, "cfop",
			repository.WithPrimaryKey("code"),
			repository.WithSearch("code", "description")),
		csts: repository.New[model.CST](db, "cst",
			repository.WithPrimaryKey("code")),
		csosns: repository.New[model.CSOSN](db, "csosn",
			repository.WithPrimaryKey("code")),
		ncms: repository.New[model.NCM](db, "ncm",
			repository.WithPrimaryKey("code"),
			repository.WithSearch("code", "description")),
		payments: repository.New[model.PaymentMethod](db, "payment method",
			repository.WithPrimaryKey("code")),
	}
}

func all[T any](ctx context.Context, r *repository.Repository[T]) ([]T, error) {
	var out []T
	if err := r.DB(ctx).Order("code").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", r.Entity(), err)
	}
	return out, nil
}

// States returns every state ordered by IBGE code
func (s *Service) States(ctx context.Context) ([]model.State, error) {
	return all(ctx, s.states)
}

// State finds a state by its UF
func (s *Service) State(ctx context.Context, uf string) (*model.State, error) {
	return s.states.FindBy(ctx, "uf", strings.ToUpper(uf))
}

// Municipalities searches municipalities by name, ignoring accents and case.
// uf restricts the search to one state when set.
func (s *Service) Municipalities(ctx context.Context, uf string, q repository.ListQuery) (*repository.Page[model.Municipality], error) {
	q.Search = brdoc.Fold(q.Search)
	if uf != "" {
		q.Filters = map[string]interface{}{"uf": strings.ToUpper(uf)}
	}
	return s.municipalities.List(ctx, q)
}

// Municipality returns the municipality with the IBGE code
func (s *Service) Municipality(ctx context.Context, code int) (*model.Municipality, error) {
	return s.municipalities.Get(ctx, code)
}

// CFOPs searches CFOPs by code or description
func (s *Service) CFOPs(ctx context.Context, q repository.ListQuery) (*repository.Page[model.CFOP], error) {
	return s.cfops.List(ctx, q)
}

// CFOP returns one CFOP
func (s *Service) CFOP(ctx context.Context, code string) (*model.CFOP, error) {
	return s.cfops.Get(ctx, code)
}

// CSTs returns the ICMS situation codes
func (s *Service) CSTs(ctx context.Context) ([]model.CST, error) {
	return all(ctx, s.csts)
}

// CSOSNs returns the Simples Nacional situation codes
func (s *Service) CSOSNs(ctx context.Context) ([]model.CSOSN, error) {
	return all(ctx, s.csosns)
}

// NCMs searches NCMs by code prefix or description
func (s *Service) NCMs(ctx context.Context, q repository.ListQuery) (*repository.Page[model.NCM], error) {
	return s.ncms.List(ctx, q)
}

// NCM returns one NCM
func (s *Service) NCM(ctx context.Context, code string) (*model.NCM, error) {
	return s.ncms.Get(ctx, brdoc.OnlyDigits(code))
}

// PaymentMethods returns the tPag codes
func (s *Service) PaymentMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	return all(ctx, s.payments)
}
