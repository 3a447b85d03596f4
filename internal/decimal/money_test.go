package decimal_test

import (
	"testing"

	dec "github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rezonia/fiscal-manager/internal/decimal"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		percent  string
		expected string
	}{
		{"ICMS 18% of 100", "100", "18", "18"},
		{"ICMS 12% of 59.90", "59.90", "12", "7.19"},
		{"exempt", "1000", "0", "0"},
		{"PIS 1.65% of 1234.56", "1234.56", "1.65", "20.37"},
		{"COFINS 7.6% of 10.01", "10.01", "7.6", "0.76"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := decimal.Percentage(dec.RequireFromString(tt.amount), dec.RequireFromString(tt.percent))
			assert.True(t, result.Equal(dec.RequireFromString(tt.expected)),
				"got %s, want %s", result.String(), tt.expected)
		})
	}
}

func TestReducedBaseTax(t *testing.T) {
	// base 1000 reduced by 33.33% -> 666.70, ICMS 18% -> 120.01
	tax := decimal.ReducedBaseTax(dec.NewFromInt(1000), dec.NewFromInt(18), dec.RequireFromString("33.33"))
	assert.True(t, tax.Equal(dec.RequireFromString("120.01")), "got %s", tax.String())

	tax = decimal.ReducedBaseTax(dec.NewFromInt(1000), dec.NewFromInt(18), dec.Zero)
	assert.True(t, tax.Equal(dec.NewFromInt(180)))
}

func TestLineAmountAndNet(t *testing.T) {
	amount := decimal.LineAmount(dec.RequireFromString("3.5"), dec.RequireFromString("10.99"))
	assert.True(t, amount.Equal(dec.RequireFromString("38.47")), "got %s", amount.String())

	result := decimal.Net(dec.NewFromInt(1000), dec.RequireFromString("100.50"))
	assert.True(t, result.Equal(dec.RequireFromString("899.50")))
}

func TestSum(t *testing.T) {
	values := []dec.Decimal{
		dec.NewFromInt(100),
		dec.NewFromInt(200),
		dec.NewFromInt(300),
	}
	result := decimal.Sum(values)
	assert.True(t, result.Equal(dec.NewFromInt(600)))
	assert.True(t, decimal.Sum(nil).IsZero())
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "R$ 0,00"},
		{"9.9", "R$ 9,90"},
		{"999.999", "R$ 1.000,00"},
		{"1532.9", "R$ 1.532,90"},
		{"1234567.891", "R$ 1.234.567,89"},
		{"-45.5", "-R$ 45,50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, decimal.FormatBRL(dec.RequireFromString(tt.in)), tt.in)
	}
}
