// Package decimal holds the BRL money arithmetic shared by orders and tax
// calculation. Amounts are rounded half-up to centavos at every step that
// lands on an invoice line, the way SEFAZ totals are checked.
package decimal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// RoundBRL rounds half-up to centavos
func RoundBRL(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineAmount is quantity times unit price (vProd), in centavos
func LineAmount(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return RoundBRL(quantity.Mul(unitPrice))
}

// Percentage computes amount * (percent/100) rounded to centavos
func Percentage(amount, percent decimal.Decimal) decimal.Decimal {
	if percent.IsZero() {
		return Zero
	}
	return RoundBRL(amount.Mul(percent).Div(hundred))
}

// ReducedBaseTax applies rate over base after the ICMS base reduction
// (redução de base de cálculo, pRedBC). A zero reduction taxes the full base.
func ReducedBaseTax(base, ratePercent, reductionPercent decimal.Decimal) decimal.Decimal {
	if !reductionPercent.IsZero() {
		base = base.Sub(Percentage(base, reductionPercent))
	}
	return Percentage(base, ratePercent)
}

// Net subtracts a discount from an amount
func Net(amount, discount decimal.Decimal) decimal.Decimal {
	return RoundBRL(amount.Sub(discount))
}

// Sum adds values without rounding
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// FormatBRL renders d as "R$ 1.234,56"
func FormatBRL(d decimal.Decimal) string {
	s := RoundBRL(d).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, cents := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$ " + b.String() + "," + cents
}
