package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxConfig groups the tax situation codes and rates applied to a product line
type TaxConfig struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"size:80;not null;uniqueIndex" json:"name" binding:"required,max=80"`
	TaxRegime         int             `gorm:"not null" json:"tax_regime" binding:"required,min=1,max=3"`
	CFOP              string          `gorm:"size:4;not null" json:"cfop" binding:"required,cfop"`
	ICMSCST           string          `gorm:"size:3" json:"icms_cst,omitempty" binding:"omitempty,cst"`
	CSOSN             string          `gorm:"size:3" json:"csosn,omitempty" binding:"omitempty,csosn"`
	ICMSRate          decimal.Decimal `gorm:"type:decimal(5,2)" json:"icms_rate" binding:"percent"`
	ICMSBaseReduction decimal.Decimal `gorm:"type:decimal(5,2)" json:"icms_base_reduction" binding:"percent"`
	PISCST            string          `gorm:"size:2" json:"pis_cst" binding:"required,numeric,len=2"`
	PISRate           decimal.Decimal `gorm:"type:decimal(7,4)" json:"pis_rate" binding:"percent"`
	COFINSCST         string          `gorm:"size:2" json:"cofins_cst" binding:"required,numeric,len=2"`
	COFINSRate        decimal.Decimal `gorm:"type:decimal(7,4)" json:"cofins_rate" binding:"percent"`
	IPIRate           decimal.Decimal `gorm:"type:decimal(5,2)" json:"ipi_rate" binding:"percent"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TaxBreakdown is the result of applying a TaxConfig to an amount
type TaxBreakdown struct {
	Base   decimal.Decimal `json:"base"`
	ICMS   decimal.Decimal `json:"icms"`
	PIS    decimal.Decimal `json:"pis"`
	COFINS decimal.Decimal `json:"cofins"`
	IPI    decimal.Decimal `json:"ipi"`
	Total  decimal.Decimal `json:"total"`
}
