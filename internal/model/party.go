package model

import (
	"strings"
	"time"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
)

// Party holds the registration data shared by clients and suppliers
type Party struct {
	Document         string `gorm:"size:14;not null;uniqueIndex" json:"document" binding:"required,cpfcnpj"`
	Name             string `gorm:"size:120;not null" json:"name" binding:"required,max=120"`
	TradeName        string `gorm:"size:120" json:"trade_name,omitempty" binding:"max=120"`
	Email            string `gorm:"size:120" json:"email,omitempty" binding:"omitempty,email"`
	Phone            string `gorm:"size:20" json:"phone,omitempty" binding:"max=20"`
	CEP              string `gorm:"size:8" json:"cep,omitempty" binding:"omitempty,cep"`
	Street           string `gorm:"size:120" json:"street,omitempty" binding:"max=120"`
	Number           string `gorm:"size:20" json:"number,omitempty" binding:"max=20"`
	District         string `gorm:"size:60" json:"district,omitempty" binding:"max=60"`
	MunicipalityCode string `gorm:"size:7" json:"municipality_code,omitempty" binding:"omitempty,numeric,len=7"`
	UF               string `gorm:"size:2" json:"uf,omitempty" binding:"omitempty,uf"`
}

// Client is a customer (destinatário)
type Client struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Party     `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Supplier is a vendor (fornecedor)
type Supplier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Party     `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize strips CPF/CNPJ and CEP punctuation and upper-cases the UF
func (p *Party) Normalize() {
	p.Document = brdoc.OnlyDigits(p.Document)
	p.CEP = brdoc.OnlyDigits(p.CEP)
	p.UF = strings.ToUpper(strings.TrimSpace(p.UF))
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
}
