// Package parser turns statement text into universal-schema transactions:
// amount and date normalization, OCR correction, and the line-scanning engine.
package parser

import "strings"

// bankSignatures maps a bank key to markers that identify its statements.
// Order matters: the first key with a matching marker wins.
var bankSignatures = []struct {
	key     string
	markers []string
}{
	{"absa", []string{"absa bank", "absa.co.za", "absa"}},
	{"fnb", []string{"first national bank", "fnb.co.za"}},
	{"standard bank", []string{"standard bank", "standardbank.co.za"}},
	{"nedbank", []string{"nedbank"}},
	{"capitec", []string{"capitec"}},
	{"hsbc", []string{"hsbc uk bank", "hsbc.co.uk", "hsbc"}},
	{"barclays", []string{"barclays bank", "barclays.co.uk", "barclays"}},
	{"metro", []string{"metro bank", "metrobankonline"}},
}

// Detect guesses the issuing bank from statement text. It returns "" when no
// known bank is mentioned. The result is suitable as a correction profile key.
func Detect(text string) string {
	lower := strings.ToLower(text)
	for _, sig := range bankSignatures {
		if containsAny(lower, sig.markers) {
			return sig.key
		}
	}
	return ""
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
