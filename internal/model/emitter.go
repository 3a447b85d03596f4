package model

import (
	"strings"
	"time"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
)

// Tax regime codes (CRT)
const (
	RegimeSimplesNacional       = 1
	RegimeSimplesExcessoReceita = 2
	RegimeNormal                = 3
)

// Emitter is the issuing company (emitente). Each emitter owns its document
// sequences, split by document type and environment.
type Emitter struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	CNPJ              string      `gorm:"size:14;not null;uniqueIndex" json:"cnpj" binding:"required,cnpj"`
	LegalName         string      `gorm:"size:120;not null" json:"legal_name" binding:"required,max=120"`
	TradeName         string      `gorm:"size:120" json:"trade_name,omitempty" binding:"max=120"`
	StateRegistration string      `gorm:"size:20" json:"state_registration,omitempty" binding:"max=20"`
	UF                string      `gorm:"size:2;not null" json:"uf" binding:"required,uf"`
	MunicipalityCode  string      `gorm:"size:7" json:"municipality_code,omitempty" binding:"omitempty,numeric,len=7"`
	TaxRegime         int         `gorm:"not null;default:1" json:"tax_regime" binding:"required,min=1,max=3"`
	ActiveEnvironment Environment `gorm:"size:16;not null;default:homologation" json:"active_environment" binding:"omitempty,oneof=production homologation"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Environment returns the active environment, homologation when unset
func (e *Emitter) Environment() Environment {
	if e.ActiveEnvironment.Valid() {
		return e.ActiveEnvironment
	}
	return EnvironmentHomologation
}

// Normalize stores registration numbers as digits and the UF upper-cased
func (e *Emitter) Normalize() {
	e.CNPJ = brdoc.OnlyDigits(e.CNPJ)
	e.UF = strings.ToUpper(strings.TrimSpace(e.UF))
	if e.ActiveEnvironment == "" {
		e.ActiveEnvironment = EnvironmentHomologation
	}
}
