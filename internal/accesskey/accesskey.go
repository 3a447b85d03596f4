// Package accesskey builds and checks the 44-digit chave de acesso shared by
// NFe, NFCe, CTe and MDFe.
//
// Layout: cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) cDV(1)
package accesskey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
)

// Length of a complete access key
const Length = 44

// Emission types (tpEmis)
const (
	EmissionNormal      = 1
	EmissionContingency = 9 // NFCe offline contingency
)

// Parts are the fields encoded in an access key
type Parts struct {
	UFCode       int       `json:"uf_code"`
	IssuedAt     time.Time `json:"issued_at"`
	CNPJ         string    `json:"cnpj"`
	Model        int       `json:"model"`
	Series       int       `json:"series"`
	Number       int64     `json:"number"`
	EmissionType int       `json:"emission_type"`
	RandomCode   int       `json:"random_code"`
	CheckDigit   int       `json:"check_digit"`
}

// CheckDigit computes the mod-11 digit over the first 43 digits
// (weights 2..9 right to left, remainder 0 or 1 gives 0).
func CheckDigit(key43 string) int {
	sum, weight := 0, 2
	for i := len(key43) - 1; i >= 0; i-- {
		sum += int(key43[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

// Build encodes p into a 44-digit key, computing the check digit
func Build(p Parts) (string, error) {
	cnpj := brdoc.OnlyDigits(p.CNPJ)
	switch {
	case p.UFCode < 11 || p.UFCode > 53:
		return "", model.NewValidationError("uf_code", p.UFCode, "range", "invalid IBGE state code")
	case len(cnpj) != 14:
		return "", model.NewValidationError("cnpj", p.CNPJ, "len", "CNPJ must have 14 digits")
	case p.Model < 1 || p.Model > 99:
		return "", model.NewValidationError("model", p.Model, "range", "invalid document model")
	case p.Series < 0 || p.Series > model.MaxSeries:
		return "", model.NewValidationError("series", p.Series, "range", "series must be between 0 and 999")
	case p.Number < 1 || p.Number > model.MaxNumber:
		return "", model.NewValidationError("number", p.Number, "range", "number must be between 1 and 999999999")
	case p.EmissionType < 1 || p.EmissionType > 9:
		return "", model.NewValidationError("emission_type", p.EmissionType, "range", "invalid emission type")
	case p.RandomCode < 0 || p.RandomCode > 99999999:
		return "", model.NewValidationError("random_code", p.RandomCode, "range", "random code must have 8 digits")
	}

	key43 := fmt.Sprintf("%02d%02d%02d%s%02d%03d%09d%d%08d",
		p.UFCode,
		p.IssuedAt.Year()%100, int(p.IssuedAt.Month()),
		cnpj,
		p.Model,
		p.Series,
		p.Number,
		p.EmissionType,
		p.RandomCode,
	)
	return key43 + strconv.Itoa(CheckDigit(key43)), nil
}

// Validate checks length, digits and check digit
func Validate(key string) error {
	if len(key) != Length || brdoc.OnlyDigits(key) != key {
		return model.NewValidationError("access_key", key, "len", "access key must have 44 digits")
	}
	if want := CheckDigit(key[:43]); int(key[43]-'0') != want {
		return model.NewValidationError("access_key", key, "check_digit",
			fmt.Sprintf("check digit mismatch (expected %d)", want))
	}
	return nil
}

// Parse validates key and decodes its fields
func Parse(key string) (*Parts, error) {
	if err := Validate(key); err != nil {
		return nil, err
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	number, _ := strconv.ParseInt(key[25:34], 10, 64)
	year := 2000 + atoi(key[2:4])
	month := time.Month(atoi(key[4:6]))
	return &Parts{
		UFCode:       atoi(key[0:2]),
		IssuedAt:     time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		CNPJ:         key[6:20],
		Model:        atoi(key[20:22]),
		Series:       atoi(key[22:25]),
		Number:       number,
		EmissionType: atoi(key[34:35]),
		RandomCode:   atoi(key[35:43]),
		CheckDigit:   atoi(key[43:44]),
	}, nil
}

// ExtractFromID strips the document prefix from an infNFe/infCte/infMDFe Id
// attribute (e.g. "NFe3523..."). Returns "" when the id is malformed.
func ExtractFromID(id string) string {
	id = strings.TrimSpace(id)
	for _, prefix := range []string{"NFe", "CTe", "MDFe"} {
		if strings.HasPrefix(id, prefix) && len(id) == len(prefix)+Length {
			return id[len(prefix):]
		}
	}
	return ""
}

// RandomCode draws the 8-digit cNF, never equal to the document number
func RandomCode(number int64) (int, error) {
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(100000000))
		if err != nil {
			return 0, fmt.Errorf("generate random code: %w", err)
		}
		if n.Int64() != number {
			return int(n.Int64()), nil
		}
	}
}
