package extractor

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// TextExtractor pulls the embedded text layer out of a PDF. It runs
// `pdftotext -layout` and reads the file in-process when poppler is missing.
type TextExtractor struct {
	Runner *Runner
}

// ExtractText returns the text of the whole document.
func (x *TextExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	out, err := x.Runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err == nil {
		return string(out), nil
	}
	if !isNotFound(err) {
		return "", err
	}
	text, libErr := extractWithLibrary(path)
	if libErr != nil {
		return "", fmt.Errorf("%w (library fallback: %v)", err, libErr)
	}
	return text, nil
}

// PageCounter reports the number of pages in a PDF via pdfinfo, or the
// in-process reader when poppler is missing.
type PageCounter struct {
	Runner *Runner
}

var pagesPattern = regexp.MustCompile(`(?im)^Pages:\s+(\d+)`)

// PageCount returns the page count. Zero pages is an error.
func (c *PageCounter) PageCount(ctx context.Context, path string) (int, error) {
	out, err := c.Runner.Run(ctx, "pdfinfo", path)
	if err == nil {
		return parsePages(out)
	}
	if !isNotFound(err) {
		return 0, err
	}
	n, libErr := libraryPageCount(path)
	if libErr != nil {
		return 0, fmt.Errorf("%w (library fallback: %v)", err, libErr)
	}
	return n, nil
}

func parsePages(out []byte) (int, error) {
	m := pagesPattern.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("pdfinfo output has no page count")
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid page count %q", m[1])
	}
	return n, nil
}

func libraryPageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader crashed: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if n = r.NumPage(); n == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return n, nil
}

// extractWithLibrary tries the reader's extraction methods in order of layout
// fidelity and returns the first readable one.
func extractWithLibrary(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader crashed: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}

	for _, method := range []func(*pdf.Reader, int) []string{textByRow, textByPosition} {
		if pages := method(r, numPages); isReadableText(pages) {
			return strings.Join(pages, "\n\n"), nil
		}
	}
	if plain := plainText(r); isReadableText([]string{plain}) {
		return plain, nil
	}
	return "", fmt.Errorf("no readable text layer")
}

func textByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// columnGap is the horizontal distance, in points, treated as a column break.
const columnGap = 15

// textByPosition rebuilds rows from raw text objects grouped by Y coordinate.
// Wide horizontal gaps become double spaces so columns stay separated.
func textByPosition(r *pdf.Reader, numPages int) []string {
	type piece struct {
		x float64
		s string
	}
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		rows := make(map[int][]piece)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rows[y] = append(rows[y], piece{x: t.X, s: t.S})
		}
		if len(rows) == 0 {
			continue
		}

		ys := make([]int, 0, len(rows))
		for y := range rows {
			ys = append(ys, y)
		}
		// PDF y grows upwards.
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		lines := make([]string, 0, len(ys))
		for _, y := range ys {
			row := rows[y]
			sort.Slice(row, func(a, b int) bool { return row[a].x < row[b].x })
			var b strings.Builder
			for j, p := range row {
				if j > 0 && p.x-row[j-1].x > columnGap {
					b.WriteString("  ")
				}
				b.WriteString(p.s)
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func plainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// statementWords appear in virtually every bank statement. Text containing none
// of them is almost certainly mis-decoded.
var statementWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "transfer",
	"opening", "closing", "paid", "page", "period",
}

// isReadableText rejects short output, output that is mostly non-ASCII (the
// signature of identity-encoded fonts) and output without a statement word.
func isReadableText(pages []string) bool {
	var total, readable, length int
	for _, p := range pages {
		length += len(strings.TrimSpace(p))
		for _, r := range p {
			total++
			if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
				readable++
			}
		}
	}
	if length <= 50 || total == 0 || float64(readable)/float64(total) <= 0.6 {
		return false
	}
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, w := range statementWords {
		if strings.Contains(combined, w) {
			return true
		}
	}
	return false
}
