package model

import (
	"time"
	_ "time/tzdata"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
)

// Reference tables loaded by the seeders. Primary keys are the official codes.

// State is a federative unit with its IBGE code
type State struct {
	Code int    `gorm:"primaryKey;autoIncrement:false" json:"code"`
	UF   string `gorm:"size:2;not null;uniqueIndex" json:"uf"`
	Name string `gorm:"size:60;not null" json:"name"`
}

// Municipality is an IBGE municipality (7-digit code)
type Municipality struct {
	Code       int    `gorm:"primaryKey;autoIncrement:false" json:"code"`
	Name       string `gorm:"size:120;not null" json:"name"`
	SearchName string `gorm:"size:120;not null;index" json:"-"`
	UF         string `gorm:"size:2;not null;index" json:"uf"`
}

// Normalize fills the accent-free search column
func (m *Municipality) Normalize() {
	m.SearchName = brdoc.Fold(m.Name)
}

// CFOP is a Código Fiscal de Operações e Prestações
type CFOP struct {
	Code        string `gorm:"primaryKey;size:4" json:"code"`
	Description string `gorm:"size:500;not null" json:"description"`
}

func (CFOP) TableName() string { return "cfops" }

// CST is an ICMS tax situation code for the normal regime
type CST struct {
	Code        string `gorm:"primaryKey;size:3" json:"code"`
	Description string `gorm:"size:255;not null" json:"description"`
}

func (CST) TableName() string { return "csts" }

// CSOSN is an ICMS tax situation code for Simples Nacional
type CSOSN struct {
	Code        string `gorm:"primaryKey;size:3" json:"code"`
	Description string `gorm:"size:255;not null" json:"description"`
}

func (CSOSN) TableName() string { return "csosns" }

// NCM is a Nomenclatura Comum do Mercosul code
type NCM struct {
	Code        string `gorm:"primaryKey;size:8" json:"code"`
	Description string `gorm:"size:500;not null" json:"description"`
}

func (NCM) TableName() string { return "ncms" }

// PaymentMethod is a tPag code used in the payment group of NFe/NFCe
type PaymentMethod struct {
	Code        string `gorm:"primaryKey;size:2" json:"code"`
	Description string `gorm:"size:80;not null" json:"description"`
}

// UFCodes maps each UF to its IBGE code, the cUF field of the access key
var UFCodes = map[string]int{
	"RO": 11, "AC": 12, "AM": 13, "RR": 14, "PA": 15, "AP": 16, "TO": 17,
	"MA": 21, "PI": 22, "CE": 23, "RN": 24, "PB": 25, "PE": 26, "AL": 27, "SE": 28, "BA": 29,
	"MG": 31, "ES": 32, "RJ": 33, "SP": 35,
	"PR": 41, "SC": 42, "RS": 43,
	"MS": 50, "MT": 51, "GO": 52, "DF": 53,
}

// ufZones lists the UFs that are not on Brasília time
var ufZones = map[string]string{
	"AC": "America/Rio_Branco",
	"AM": "America/Manaus",
	"RR": "America/Boa_Vista",
	"RO": "America/Porto_Velho",
	"MT": "America/Cuiaba",
	"MS": "America/Campo_Grande",
}

// UFLocation returns the local time zone of uf, Brasília time by default.
// dhEmi and the AAMM of the access key are expressed in it.
func UFLocation(uf string) *time.Location {
	name, ok := ufZones[uf]
	if !ok {
		name = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// UFCode returns the IBGE code for uf
func UFCode(uf string) (int, bool) {
	code, ok := UFCodes[uf]
	return code, ok
}
