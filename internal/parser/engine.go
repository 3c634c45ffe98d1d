package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-converter/internal/models"
)

// NoTransactionsWarning is emitted when a block of text yields nothing.
const NoTransactionsWarning = "No transactions detected; check OCR quality or provide a clearer scan."

// DefaultCurrency is stamped on extracted transactions when none is configured.
const DefaultCurrency = "ZAR"

const (
	lookaheadLines     = 2
	minContinuationLen = 3
	fallbackDesc       = "Transaction"
)

var (
	pageHeaderPattern = regexp.MustCompile(`(?i)^page\s+\d+`)
	statementPattern  = regexp.MustCompile(`(?i)statement`)
	creditPattern     = regexp.MustCompile(`(?i)(?:\d|\b)cr(?:edit)?\b`)
	multiSpacePattern = regexp.MustCompile(`\s{2,}`)
)

// Engine turns a block of statement text into transactions and QA counters.
type Engine struct {
	Dates     DateNormalizer
	Corrector *Corrector
	Currency  string
}

// NewEngine returns an engine with the default correction profiles.
func NewEngine() *Engine {
	return &Engine{
		Corrector: NewCorrector(DefaultProfiles...),
		Currency:  DefaultCurrency,
	}
}

func (e *Engine) currency() string {
	if e.Currency == "" {
		return DefaultCurrency
	}
	return e.Currency
}

// isBoilerplate reports page headers and statement banners. They are neither
// transactions nor continuation data.
func isBoilerplate(line string) bool {
	return pageHeaderPattern.MatchString(line) || statementPattern.MatchString(line)
}

// splitLines returns the trimmed, non-empty lines of text.
func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Extract scans text line by line. OCR text is corrected for bankName first.
func (e *Engine) Extract(text string, method models.Method, bankName string) models.ExtractionResult {
	if method == models.MethodOCR {
		text = e.Corrector.Correct(text, bankName)
	}
	lines := splitLines(text)

	var (
		warnings     []string
		transactions []models.Transaction
		samples      []string
		current      = -1
		matched      int
		balanceCount int
		debitTotal   = decimal.Zero
		creditTotal  = decimal.Zero
		skipUntil    = -1
	)

	for i, line := range lines {
		if i <= skipUntil || isBoilerplate(line) {
			continue
		}

		token, end, ok := FindDate(line)
		if !ok {
			switch {
			case current >= 0:
				if utf8.RuneCountInString(line) >= minContinuationLen {
					t := &transactions[current]
					t.Description = strings.TrimSpace(t.Description + " " + line)
				}
			case len(samples) < models.MaxUnmatchedSamples:
				samples = append(samples, line)
			}
			continue
		}

		matched++
		date := e.Dates.Normalize(token)
		if date.Guessed {
			warnings = append(warnings, YearAssumedWarning)
		}

		source := strings.TrimSpace(line[end:])
		amounts := ExtractAmounts(source)
		if len(amounts) == 0 {
			if merged, last := lookahead(lines, i); last > i {
				combined := strings.TrimSpace(source + " " + merged)
				if found := ExtractAmounts(combined); len(found) > 0 {
					amounts, source, skipUntil = found, combined, last
				}
			}
		}

		txn := models.Transaction{
			Date:        date.Date,
			Description: describe(source),
			Currency:    e.currency(),
		}
		txn.Debit, txn.Credit, txn.Balance = assignAmounts(amounts, creditPattern.MatchString(source))

		if d, ok := parseDecimal(txn.Debit); ok {
			debitTotal = debitTotal.Add(d)
		}
		if c, ok := parseDecimal(txn.Credit); ok {
			creditTotal = creditTotal.Add(c)
		}
		if txn.Balance != "" {
			balanceCount++
		}

		transactions = append(transactions, txn)
		current = len(transactions) - 1
	}

	if len(transactions) == 0 {
		warnings = append(warnings, NoTransactionsWarning)
	}
	if samples == nil {
		samples = []string{}
	}

	return models.ExtractionResult{
		Transactions: transactions,
		Warnings:     warnings,
		QaReport: models.QaReport{
			Method: method,
			LineStats: &models.LineStats{
				TotalLines:      len(lines),
				MatchedLines:    matched,
				UnmatchedLines:  len(lines) - matched,
				SampleUnmatched: samples,
			},
			Transactions: len(transactions),
			DebitTotal:   debitTotal.Round(2),
			CreditTotal:  creditTotal.Round(2),
			BalanceCount: balanceCount,
		},
	}
}

// lookahead joins up to two lines after i, stopping before any line that starts
// its own transaction or is boilerplate. It returns the joined text and the index
// of the last line taken (i when none were).
func lookahead(lines []string, i int) (string, int) {
	var parts []string
	last := i
	for j := i + 1; j < len(lines) && j <= i+lookaheadLines; j++ {
		if isBoilerplate(lines[j]) {
			break
		}
		if _, _, ok := FindDate(lines[j]); ok {
			break
		}
		parts = append(parts, lines[j])
		last = j
	}
	return strings.Join(parts, " "), last
}

func describe(source string) string {
	desc := multiSpacePattern.ReplaceAllString(stripAmounts(source), " ")
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return fallbackDesc
	}
	return desc
}

// assignAmounts maps the monetary tokens of a line onto debit, credit and balance.
//
//	>=3 tokens: the last three are debit, credit, balance; earlier ones are ignored.
//	2 tokens:   the first is a signed amount and there is no balance. Negative is a
//	            debit; otherwise a cr/credit marker makes it a credit.
//	1 token:    balance only.
func assignAmounts(amounts []string, creditMarker bool) (debit, credit, balance string) {
	n := len(amounts)
	switch {
	case n >= 3:
		debit, credit = ResolveSides(ParseAmount(amounts[n-3]), ParseAmount(amounts[n-2]))
		balance = ParseAmount(amounts[n-1])
	case n == 2:
		amount := ParseAmount(amounts[0])
		switch {
		case amount == "":
		case strings.HasPrefix(amount, "-"):
			debit = strings.TrimPrefix(amount, "-")
		case creditMarker:
			credit = amount
		default:
			debit = amount
		}
	case n == 1:
		balance = ParseAmount(amounts[0])
	}
	return debit, credit, balance
}
