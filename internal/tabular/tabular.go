// Package tabular maps bank CSV and XLSX exports onto the universal transaction schema.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/parser"
)

const (
	// EmptyWarning is returned when an export has a header but no data rows.
	EmptyWarning = "No rows found in CSV."
	// IncompleteMappingWarning is returned once when date or description cannot be resolved.
	IncompleteMappingWarning = "Some standard columns were missing; mapping may be incomplete."
)

type column int

const (
	colDate column = iota
	colDescription
	colReference
	colDebit
	colCredit
	colAmount
	colBalance
	numColumns
)

// headerAliases lists the accepted header spellings for each universal column.
var headerAliases = [numColumns][]string{
	colDate:        {"date", "transaction date", "posting date", "value date"},
	colDescription: {"description", "details", "narrative", "transaction description"},
	colReference:   {"reference", "ref", "statement ref", "cheque"},
	colDebit:       {"debit", "withdrawal", "paid out", "outflow"},
	colCredit:      {"credit", "deposit", "paid in", "inflow"},
	colAmount:      {"amount", "transaction amount"},
	colBalance:     {"balance", "running balance"},
}

// Normalizer converts tabular exports. The zero value is usable.
type Normalizer struct {
	Dates    parser.DateNormalizer
	Currency string
}

// ConvertCSV normalizes delimited text with a header row.
func (n *Normalizer) ConvertCSV(text string) (models.ExtractionResult, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.ExtractionResult{}, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
	}
	return n.normalize(records), nil
}

// headerMap resolves each universal column to a header index, or -1.
// The first header matching an alias wins.
func headerMap(headers []string) [numColumns]int {
	var m [numColumns]int
	for i := range m {
		m[i] = -1
	}
	for idx, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		for col, aliases := range headerAliases {
			if m[col] >= 0 {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					m[col] = idx
					break
				}
			}
		}
	}
	return m
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// normalize maps records (header first) onto universal transactions.
func (n *Normalizer) normalize(records [][]string) models.ExtractionResult {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		if !blank(r) {
			rows = append(rows, r)
		}
	}

	result := models.ExtractionResult{
		QaReport: models.QaReport{
			Method:      models.MethodCSV,
			DebitTotal:  decimal.Zero,
			CreditTotal: decimal.Zero,
		},
	}
	if len(rows) < 2 {
		result.Warnings = []string{EmptyWarning}
		return result
	}

	cols := headerMap(rows[0])
	descCol := cols[colDescription]
	if descCol < 0 {
		descCol = 0
	}

	currency := n.Currency
	if currency == "" {
		currency = parser.DefaultCurrency
	}

	var (
		warnings     []string
		transactions = make([]models.Transaction, 0, len(rows)-1)
		debitTotal   = decimal.Zero
		creditTotal  = decimal.Zero
		balanceCount int
	)
	if cols[colDate] < 0 || cols[colDescription] < 0 {
		warnings = append(warnings, IncompleteMappingWarning)
	}

	for _, row := range rows[1:] {
		date := cell(row, cols[colDate])
		if parser.IsDate(date) {
			nd := n.Dates.Normalize(date)
			date = nd.Date
			if nd.Guessed {
				warnings = append(warnings, parser.YearAssumedWarning)
			}
		}

		debit := magnitude(cell(row, cols[colDebit]))
		credit := magnitude(cell(row, cols[colCredit]))
		if debit == "" && credit == "" {
			credit = parser.ParseAmount(cell(row, cols[colAmount]))
		}
		debit, credit = parser.ResolveSides(debit, credit)

		txn := models.Transaction{
			Date:        date,
			Description: cell(row, descCol),
			Reference:   cell(row, cols[colReference]),
			Debit:       debit,
			Credit:      credit,
			Balance:     parser.ParseAmount(cell(row, cols[colBalance])),
			Currency:    currency,
		}

		if d, err := decimal.NewFromString(txn.Debit); err == nil {
			debitTotal = debitTotal.Add(d)
		}
		if c, err := decimal.NewFromString(txn.Credit); err == nil {
			creditTotal = creditTotal.Add(c)
		}
		if txn.Balance != "" {
			balanceCount++
		}
		transactions = append(transactions, txn)
	}

	result.Transactions = transactions
	result.Warnings = warnings
	result.QaReport.Transactions = len(transactions)
	result.QaReport.DebitTotal = debitTotal.Round(2)
	result.QaReport.CreditTotal = creditTotal.Round(2)
	result.QaReport.BalanceCount = balanceCount
	return result
}

// magnitude parses a debit or credit column cell. Those columns carry the side in
// their header, so a sign on the value is ignored.
func magnitude(raw string) string {
	return strings.TrimPrefix(parser.ParseAmount(raw), "-")
}
