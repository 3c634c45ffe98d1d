package conversion

import (
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-converter/internal/models"
)

const (
	LowYieldWarning = "Low transaction count from text extraction; OCR fallback used."

	UnmatchedRatioNote = "High unmatched line ratio; OCR may be unreliable."
	HighAverageWarning = "Average transaction amount is unusually high; please review OCR."
	HighAverageNote    = "Average transaction amount unusually high; review OCR."
	ZeroTotalsNote     = "Totals are zero; statement may need manual review."
)

// maxUnmatchedRatio is the share of unmatched lines above which OCR is distrusted.
const maxUnmatchedRatio = 0.45

var maxAverageAmount = decimal.NewFromInt(1_000_000)

// newOCRReport is the identity of mergeQa for a document of pageCount pages.
func newOCRReport(pageCount int) models.QaReport {
	return models.QaReport{
		Method:      models.MethodOCR,
		PageCount:   pageCount,
		LineStats:   &models.LineStats{SampleUnmatched: []string{}},
		DebitTotal:  decimal.Zero,
		CreditTotal: decimal.Zero,
	}
}

// mergeQa adds the counters of page into acc. Unmatched samples are kept in page
// order up to the cap.
func mergeQa(acc, page models.QaReport) models.QaReport {
	out := acc
	out.Transactions += page.Transactions
	out.DebitTotal = acc.DebitTotal.Add(page.DebitTotal)
	out.CreditTotal = acc.CreditTotal.Add(page.CreditTotal)
	out.BalanceCount += page.BalanceCount

	if page.LineStats == nil {
		return out
	}
	stats := models.LineStats{SampleUnmatched: []string{}}
	if acc.LineStats != nil {
		stats = *acc.LineStats
		stats.SampleUnmatched = append([]string{}, acc.LineStats.SampleUnmatched...)
	}
	stats.TotalLines += page.TotalLines
	stats.MatchedLines += page.MatchedLines
	stats.UnmatchedLines += page.UnmatchedLines
	for _, s := range page.SampleUnmatched {
		if len(stats.SampleUnmatched) >= models.MaxUnmatchedSamples {
			break
		}
		stats.SampleUnmatched = append(stats.SampleUnmatched, s)
	}
	out.LineStats = &stats
	return out
}

// flagAnomalies appends a warning for each data-quality flag on qa. Every flag
// also overwrites the reconciliation note, so the last one raised wins.
func flagAnomalies(qa *models.QaReport, warnings []string) []string {
	if qa.LineStats != nil && qa.TotalLines > 0 {
		ratio := float64(qa.UnmatchedLines) / float64(qa.TotalLines)
		if ratio > maxUnmatchedRatio {
			warnings = append(warnings, UnmatchedRatioNote)
			qa.ReconciliationNote = UnmatchedRatioNote
		}
	}

	if qa.Transactions > 0 {
		n := decimal.NewFromInt(int64(qa.Transactions))
		if qa.DebitTotal.Div(n).GreaterThan(maxAverageAmount) || qa.CreditTotal.Div(n).GreaterThan(maxAverageAmount) {
			warnings = append(warnings, HighAverageWarning)
			qa.ReconciliationNote = HighAverageNote
		}
		if qa.DebitTotal.IsZero() && qa.CreditTotal.IsZero() {
			warnings = append(warnings, ZeroTotalsNote)
			qa.ReconciliationNote = ZeroTotalsNote
		}
	}
	return warnings
}
