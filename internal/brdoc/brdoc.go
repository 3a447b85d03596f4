// Package brdoc validates and normalizes Brazilian registration numbers
// (CNPJ, CPF, CEP) and computes their check digits.
package brdoc

import "strings"

// OnlyDigits removes everything that is not an ASCII digit
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// mod11 computes one check digit with weights cycling from 2 up to maxWeight,
// right to left. Remainders below 2 give digit 0.
func mod11(digits string, maxWeight int) byte {
	sum, weight := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > maxWeight {
			weight = 2
		}
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}

// ValidCNPJ reports whether s (formatted or not) is a CNPJ with valid check digits
func ValidCNPJ(s string) bool {
	d := OnlyDigits(s)
	if len(d) != 14 || allSame(d) {
		return false
	}
	return mod11(d[:12], 9) == d[12] && mod11(d[:13], 9) == d[13]
}

// ValidCPF reports whether s (formatted or not) is a CPF with valid check digits
func ValidCPF(s string) bool {
	d := OnlyDigits(s)
	if len(d) != 11 || allSame(d) {
		return false
	}
	return mod11(d[:9], 11) == d[9] && mod11(d[:10], 11) == d[10]
}

// ValidCPFOrCNPJ accepts either document
func ValidCPFOrCNPJ(s string) bool {
	switch len(OnlyDigits(s)) {
	case 11:
		return ValidCPF(s)
	case 14:
		return ValidCNPJ(s)
	}
	return false
}

// ValidCEP reports whether s has the 8 digits of a postal code
func ValidCEP(s string) bool {
	d := OnlyDigits(s)
	return len(d) == 8 && len(s) <= 9
}

// FormatCNPJ renders 14 digits as 00.000.000/0000-00
func FormatCNPJ(s string) string {
	d := OnlyDigits(s)
	if len(d) != 14 {
		return s
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

// FormatCPF renders 11 digits as 000.000.000-00
func FormatCPF(s string) string {
	d := OnlyDigits(s)
	if len(d) != 11 {
		return s
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}
