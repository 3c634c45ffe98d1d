package writer

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/insightdelivered/statement-converter/internal/models"
)

// CSVWriter writes transactions in the universal schema, header first.
type CSVWriter struct{}

// WriteToFile writes transactions to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, txns []models.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	if err := w.Write(f, txns); err != nil {
		return err
	}
	return f.Close()
}

// Write writes transactions in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, txns []models.Transaction) error {
	if txns == nil {
		txns = []models.Transaction{}
	}
	if err := gocsv.Marshal(&txns, out); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// WriteString renders transactions as an in-memory CSV document.
func (w *CSVWriter) WriteString(txns []models.Transaction) (string, error) {
	if txns == nil {
		txns = []models.Transaction{}
	}
	out, err := gocsv.MarshalString(&txns)
	if err != nil {
		return "", fmt.Errorf("failed to write CSV: %w", err)
	}
	return out, nil
}
