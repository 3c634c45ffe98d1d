package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountPattern matches monetary tokens: grouped thousands (space or comma)
// with a two-digit fraction, or a plain run of digits with a two-digit fraction.
var amountPattern = regexp.MustCompile(`-?\d{1,3}(?:[ ,]\d{3})*(?:[.,]\d{2})|-?\d+[.,]\d{2}`)

var crDrSuffix = regexp.MustCompile(`(?i)(CR|DR)$`)

var currencySymbols = strings.NewReplacer("£", "", "$", "", "€", "", "¥", "")

// ExtractAmounts returns every monetary token in line, left to right.
func ExtractAmounts(line string) []string {
	return amountPattern.FindAllString(line, -1)
}

// stripAmounts removes every monetary token from s.
func stripAmounts(s string) string {
	return amountPattern.ReplaceAllString(s, "")
}

// ParseAmount converts a raw numeric token into a signed decimal string with two
// fraction digits, or "" when the token is not a number.
//
// Accepted: "1,234.56", "1.234,56", "1 234,56", "(50.00)", "150.00CR", "-£25.99".
func ParseAmount(token string) string {
	d, ok := parseDecimal(token)
	if !ok {
		return ""
	}
	return d.StringFixed(2)
}

func parseDecimal(token string) (decimal.Decimal, bool) {
	cleaned := strings.Join(strings.Fields(token), "")
	cleaned = currencySymbols.Replace(cleaned)
	cleaned = crDrSuffix.ReplaceAllString(cleaned, "")

	negative := strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")")
	cleaned = strings.Trim(cleaned, "()")
	if cleaned == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(normalizeSeparators(cleaned))
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Abs().Neg()
	}
	return d, true
}

// normalizeSeparators rewrites s so that "." is the only decimal point. With both
// separators present the right-most one is the decimal point; with only commas the
// last comma is.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma < 0 {
		return s
	}
	if lastDot > lastComma {
		return strings.ReplaceAll(s, ",", "")
	}
	s = strings.ReplaceAll(s, ".", "")
	lastComma = strings.LastIndex(s, ",")
	return strings.ReplaceAll(s[:lastComma], ",", "") + "." + s[lastComma+1:]
}

// ResolveSides enforces the debit/credit exclusivity of a transaction. A negative
// debit becomes a credit and a negative credit becomes a debit, overriding the other
// column; the debit is checked first. Otherwise a zero placeholder next to a real
// amount is dropped, and two real amounts are netted (credit minus debit).
func ResolveSides(debit, credit string) (string, string) {
	d, hasDebit := parseDecimal(debit)
	c, hasCredit := parseDecimal(credit)

	switch {
	case hasDebit && d.IsNegative():
		return "", d.Neg().StringFixed(2)
	case hasCredit && c.IsNegative():
		return c.Neg().StringFixed(2), ""
	}

	if hasDebit && hasCredit {
		switch {
		case d.IsZero():
			hasDebit = false
		case c.IsZero():
			hasCredit = false
		default:
			return sided(c.Sub(d))
		}
	}
	switch {
	case hasDebit && d.IsZero():
		return "0.00", ""
	case hasDebit:
		return d.StringFixed(2), ""
	case hasCredit && c.IsZero():
		return "", "0.00"
	case hasCredit:
		return "", c.StringFixed(2)
	}
	return "", ""
}

// sided places a signed amount (credits positive) on the matching side.
func sided(v decimal.Decimal) (string, string) {
	if v.IsNegative() {
		return v.Neg().StringFixed(2), ""
	}
	if v.IsZero() {
		return "0.00", ""
	}
	return "", v.StringFixed(2)
}
