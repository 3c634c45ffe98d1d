package tabular

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/parser"
)

func newNormalizer() *Normalizer {
	return &Normalizer{Dates: parser.DateNormalizer{Now: func() time.Time {
		return time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	}}}
}

func TestNormalizer_ConvertCSV(t *testing.T) {
	t.Run("maps debit and credit columns", func(t *testing.T) {
		csv := `Transaction Date,Details,Ref,Paid Out,Paid In,Running Balance
15/01/2024,Grocery Store,INV-1,150.00,,350.00
16/01/2024,Salary,,,"1,000.00","1,350.00"
17/01/2024,Refund,,0.00,25.00,1375.00`

		res, err := newNormalizer().ConvertCSV(csv)
		require.NoError(t, err)
		require.Len(t, res.Transactions, 3)
		assert.Empty(t, res.Warnings)

		first := res.Transactions[0]
		assert.Equal(t, "2024-01-15", first.Date)
		assert.Equal(t, "Grocery Store", first.Description)
		assert.Equal(t, "INV-1", first.Reference)
		assert.Equal(t, "150.00", first.Debit)
		assert.Empty(t, first.Credit)
		assert.Equal(t, "350.00", first.Balance)
		assert.Equal(t, parser.DefaultCurrency, first.Currency)

		assert.Equal(t, "1000.00", res.Transactions[1].Credit)
		assert.Equal(t, "1350.00", res.Transactions[1].Balance)
		assert.Empty(t, res.Transactions[2].Debit)
		assert.Equal(t, "25.00", res.Transactions[2].Credit)

		qa := res.QaReport
		assert.Equal(t, models.MethodCSV, qa.Method)
		assert.Nil(t, qa.LineStats)
		assert.Equal(t, 3, qa.Transactions)
		assert.Equal(t, "150.00", qa.DebitTotal.StringFixed(2))
		assert.Equal(t, "1025.00", qa.CreditTotal.StringFixed(2))
		assert.Equal(t, 3, qa.BalanceCount)
	})

	t.Run("derives sides from a signed amount column", func(t *testing.T) {
		csv := `date,description,amount
2024-01-15,Coffee Shop,-4.50
2024-01-16,Salary,5000.00
2024-01-17,Adjustment,0.00`

		res, err := newNormalizer().ConvertCSV(csv)
		require.NoError(t, err)
		require.Len(t, res.Transactions, 3)

		assert.Equal(t, "4.50", res.Transactions[0].Debit)
		assert.Empty(t, res.Transactions[0].Credit)
		assert.Equal(t, "5000.00", res.Transactions[1].Credit)
		assert.Empty(t, res.Transactions[1].Debit)
		assert.Equal(t, "0.00", res.Transactions[2].Credit)
		assert.Equal(t, 0, res.QaReport.BalanceCount)
	})

	t.Run("signed debit column stays a debit", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("date,description,debit\n2024-01-15,Fee,-12.00")
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Equal(t, "12.00", res.Transactions[0].Debit)
	})

	t.Run("missing columns fall back to the first column", func(t *testing.T) {
		csv := `Memo,Amount
Card purchase,-20.00
Transfer in,30.00`

		res, err := newNormalizer().ConvertCSV(csv)
		require.NoError(t, err)
		require.Len(t, res.Transactions, 2)
		assert.Equal(t, []string{IncompleteMappingWarning}, res.Warnings)
		assert.Equal(t, "Card purchase", res.Transactions[0].Description)
		assert.Empty(t, res.Transactions[0].Date)
	})

	t.Run("first matching header wins", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("Date,Value Date,Description\n15/01/2024,20/01/2024,Fee")
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Equal(t, "2024-01-15", res.Transactions[0].Date)
	})

	t.Run("non-date cells pass through", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("date,description\nyesterday,Fee")
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Equal(t, "yesterday", res.Transactions[0].Date)
	})

	t.Run("year assumed for month-name dates", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("date,description,debit\n15 Jan,Fee,5.00")
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Equal(t, "2024-01-15", res.Transactions[0].Date)
		assert.Equal(t, []string{parser.YearAssumedWarning}, res.Warnings)
	})

	t.Run("header only", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("date,description,amount\n")
		require.NoError(t, err)
		assert.Empty(t, res.Transactions)
		assert.Equal(t, []string{EmptyWarning}, res.Warnings)
		assert.Equal(t, models.MethodCSV, res.QaReport.Method)
	})

	t.Run("empty input", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("")
		require.NoError(t, err)
		assert.Equal(t, []string{EmptyWarning}, res.Warnings)
	})

	t.Run("blank rows skipped", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("date,description,amount\n,,\n2024-01-15,Fee,-1.00\n\n")
		require.NoError(t, err)
		assert.Len(t, res.Transactions, 1)
	})

	t.Run("short rows", func(t *testing.T) {
		res, err := newNormalizer().ConvertCSV("date,description,amount,balance\n2024-01-15,Fee")
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Empty(t, res.Transactions[0].Debit)
		assert.Empty(t, res.Transactions[0].Balance)
	})
}

func TestNormalizer_ConvertCSV_Idempotent(t *testing.T) {
	csv := "date,description,amount,balance\n2024-01-15,Coffee,-4.50,95.50\n2024-01-16,Pay,100.00,195.50\n"

	first, err := newNormalizer().ConvertCSV(csv)
	require.NoError(t, err)
	second, err := newNormalizer().ConvertCSV(csv)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalizer_CustomCurrency(t *testing.T) {
	n := newNormalizer()
	n.Currency = "GBP"

	res, err := n.ConvertCSV("date,description,amount\n2024-01-15,Fee,-1.00")
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "GBP", res.Transactions[0].Currency)
}

func workbook(t *testing.T, sheet string, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestNormalizer_ConvertXLSX(t *testing.T) {
	t.Run("reads the transactions sheet", func(t *testing.T) {
		buf := workbook(t, "Transactions", [][]interface{}{
			{"Posting Date", "Narrative", "Withdrawal", "Deposit", "Balance"},
			{"15/01/2024", "Grocery Store", "150.00", "", "350.00"},
			{"16/01/2024", "Salary", "", "1000.00", "1350.00"},
		})

		res, err := newNormalizer().ConvertXLSX(buf)
		require.NoError(t, err)
		require.Len(t, res.Transactions, 2)
		assert.Equal(t, "2024-01-15", res.Transactions[0].Date)
		assert.Equal(t, "150.00", res.Transactions[0].Debit)
		assert.Equal(t, "1000.00", res.Transactions[1].Credit)
		assert.Equal(t, models.MethodCSV, res.QaReport.Method)
	})

	t.Run("falls back to the first sheet", func(t *testing.T) {
		buf := workbook(t, "Sheet1", [][]interface{}{
			{"Date", "Description", "Amount"},
			{"2024-01-15", "Coffee", "-4.50"},
		})

		res, err := newNormalizer().ConvertXLSX(buf)
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Equal(t, "4.50", res.Transactions[0].Debit)
	})

	t.Run("rejects non-workbook input", func(t *testing.T) {
		_, err := newNormalizer().ConvertXLSX(bytes.NewReader([]byte("not a workbook")))
		assert.Error(t, err)
	})
}

func TestTransactionSheet(t *testing.T) {
	assert.Equal(t, "Statement", transactionSheet([]string{"Summary", "Statement"}))
	assert.Equal(t, "Summary", transactionSheet([]string{"Summary", "Notes"}))
	assert.Empty(t, transactionSheet(nil))
}
