package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item with its fiscal classification
type Product struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	SKU         string          `gorm:"size:60;not null;uniqueIndex" json:"sku" binding:"required,max=60"`
	Description string          `gorm:"size:120;not null" json:"description" binding:"required,max=120"`
	GTIN        string          `gorm:"size:14" json:"gtin,omitempty" binding:"omitempty,numeric,min=8,max=14"`
	NCM         string          `gorm:"size:8;not null" json:"ncm" binding:"required,ncm"`
	CEST        string          `gorm:"size:7" json:"cest,omitempty" binding:"omitempty,numeric,len=7"`
	CFOP        string          `gorm:"size:4" json:"cfop,omitempty" binding:"omitempty,cfop"`
	Unit        string          `gorm:"size:6;not null" json:"unit" binding:"required,max=6"`
	Price       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"price" binding:"gte=0"`
	TaxConfigID *uint           `json:"tax_config_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
