package conversion

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/statement-converter/internal/models"
)

var errNotRendered = errors.New("page image was not rendered")

// pageOutcome is the OCR result of one page, or the error that lost it.
type pageOutcome struct {
	page   int
	result models.ExtractionResult
	err    *PageExtractionError
}

type ocrOutcome struct {
	transactions []models.Transaction
	warnings     []string
	qa           models.QaReport
	previewPath  string
}

// ocrDocument renders and OCRs pages 1..pages in batches. Rendered images live in
// a temporary directory removed on return; the first rendered image is copied out
// as the preview.
func (c *Converter) ocrDocument(ctx context.Context, pdfPath string, pages int, opts Options, log zerolog.Logger) (ocrOutcome, error) {
	dir, err := os.MkdirTemp(c.Settings.TempDir, "statement-ocr-*")
	if err != nil {
		return ocrOutcome{}, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var (
		outcomes = make([]pageOutcome, 0, pages)
		preview  string
		batch    = c.Settings.BatchSize
	)
	for first := 1; first <= pages; first += batch {
		last := min(first+batch-1, pages)

		rendered, err := c.Renderer.Render(ctx, pdfPath, first, last, c.Settings.DPI, dir)
		if err != nil {
			log.Warn().Err(err).Int("first", first).Int("last", last).Msg("batch render failed")
		}
		images := make(map[int]string, len(rendered))
		for _, r := range rendered {
			images[r.Page] = r.Path
		}

		if preview == "" && len(rendered) > 0 {
			if p, err := c.copyPreview(rendered[0].Path, opts.UploadID); err != nil {
				log.Warn().Err(err).Msg("could not keep preview")
			} else {
				preview = p
			}
		}

		for _, o := range c.ocrBatch(ctx, first, last, images, err, opts.BankName) {
			if o.err != nil {
				log.Warn().Int("page", o.page).Err(o.err.Err).Msg("page OCR failed")
			}
			outcomes = append(outcomes, o)
		}
		if ctx.Err() != nil {
			return ocrOutcome{}, ctx.Err()
		}
	}

	out := foldPages(pages, outcomes)
	out.previewPath = preview
	return out, nil
}

// ocrBatch OCRs pages first..last with up to Settings.Concurrency workers and
// returns the outcomes in page order. renderErr, when set, is the reason a page
// without an image was lost.
func (c *Converter) ocrBatch(ctx context.Context, first, last int, images map[int]string, renderErr error, bankName string) []pageOutcome {
	out := make([]pageOutcome, last-first+1)

	var g errgroup.Group
	g.SetLimit(c.Settings.Concurrency)
	for page := first; page <= last; page++ {
		page := page
		g.Go(func() error {
			out[page-first] = c.ocrPage(ctx, page, images[page], renderErr, bankName)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Converter) ocrPage(ctx context.Context, page int, image string, renderErr error, bankName string) (o pageOutcome) {
	o.page = page
	defer func() {
		if c.Observer != nil {
			var err error
			if o.err != nil {
				err = o.err
			}
			c.Observer.PageProcessed(page, err)
		}
	}()

	if image == "" {
		if renderErr == nil {
			renderErr = errNotRendered
		}
		o.err = &PageExtractionError{Page: page, Err: renderErr}
		return o
	}
	defer os.Remove(image)

	text, err := c.OCR.OCR(ctx, image, c.Settings.Language, c.Settings.PSM)
	if err != nil {
		o.err = &PageExtractionError{Page: page, Err: err}
		return o
	}
	o.result = c.Engine.Extract(text, models.MethodOCR, bankName)
	return o
}

// foldPages merges page outcomes in order. Failed pages contribute only a warning.
func foldPages(pageCount int, outcomes []pageOutcome) ocrOutcome {
	out := ocrOutcome{qa: newOCRReport(pageCount)}
	for _, o := range outcomes {
		if o.err != nil {
			out.warnings = append(out.warnings, fmt.Sprintf("Page %d: OCR failed. %v", o.page, o.err.Err))
			continue
		}
		out.transactions = append(out.transactions, o.result.Transactions...)
		for _, w := range o.result.Warnings {
			out.warnings = append(out.warnings, fmt.Sprintf("Page %d: %s", o.page, w))
		}
		out.qa = mergeQa(out.qa, o.result.QaReport)
	}
	return out
}
