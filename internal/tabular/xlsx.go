package tabular

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-converter/internal/models"
)

var preferredSheets = []string{"transactions", "statement", "data", "sheet1"}

// ConvertXLSX normalizes the transaction sheet of an Excel workbook.
func (n *Normalizer) ConvertXLSX(r io.Reader) (models.ExtractionResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := transactionSheet(f.GetSheetList())
	if sheet == "" {
		return models.ExtractionResult{}, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return n.normalize(rows), nil
}

func transactionSheet(sheets []string) string {
	for _, preferred := range preferredSheets {
		for _, s := range sheets {
			if strings.EqualFold(s, preferred) {
				return s
			}
		}
	}
	if len(sheets) == 0 {
		return ""
	}
	return sheets[0]
}
