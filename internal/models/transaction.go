package models

import "github.com/shopspring/decimal"

// UniversalHeaders is the column order of every converted ledger.
var UniversalHeaders = []string{"date", "description", "reference", "debit", "credit", "balance", "currency"}

// Transaction is one row of the universal schema. Amounts are non-negative
// decimal strings with two fraction digits, and at most one of Debit/Credit is set.
type Transaction struct {
	Date        string `csv:"date" json:"date"`
	Description string `csv:"description" json:"description"`
	Reference   string `csv:"reference" json:"reference"`
	Debit       string `csv:"debit" json:"debit"`
	Credit      string `csv:"credit" json:"credit"`
	Balance     string `csv:"balance" json:"balance"`
	Currency    string `csv:"currency" json:"currency"`
}

// Method identifies which conversion path produced a QA report.
type Method string

const (
	MethodText Method = "text"
	MethodOCR  Method = "ocr"
	MethodCSV  Method = "csv"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodText, MethodOCR, MethodCSV:
		return true
	}
	return false
}

// MaxUnmatchedSamples caps QaReport.SampleUnmatched.
const MaxUnmatchedSamples = 6

// LineStats holds the line counters only line-based extraction produces.
type LineStats struct {
	TotalLines      int      `json:"totalLines"`
	MatchedLines    int      `json:"matchedLines"`
	UnmatchedLines  int      `json:"unmatchedLines"`
	SampleUnmatched []string `json:"sampleUnmatched"`
}

// QaReport summarises extraction confidence for manual review triage.
// LineStats is nil for the csv method.
type QaReport struct {
	Method    Method `json:"method"`
	PageCount int    `json:"pageCount,omitempty"`
	*LineStats
	Transactions       int             `json:"transactions"`
	DebitTotal         decimal.Decimal `json:"debitTotal"`
	CreditTotal        decimal.Decimal `json:"creditTotal"`
	BalanceCount       int             `json:"balanceCount"`
	ReconciliationNote string          `json:"reconciliationNote,omitempty"`
}

// ExtractionResult is what the extraction engine and the tabular normalizer return.
type ExtractionResult struct {
	Transactions []Transaction
	Warnings     []string
	QaReport     QaReport
}

// ConversionResult is handed to the caller of a conversion. PreviewPath is empty
// when no preview image was retained.
type ConversionResult struct {
	CSV          string   `json:"csv"`
	Transactions int      `json:"transactions"`
	PageCount    int      `json:"pageCount"`
	Warnings     []string `json:"warnings"`
	QaReport     QaReport `json:"qaReport"`
	PreviewPath  string   `json:"previewPath,omitempty"`
}
