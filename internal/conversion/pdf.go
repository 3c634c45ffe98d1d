package conversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/remote"
)

// Convert converts the PDF at pdfPath. Direct text extraction is accepted when it
// yields at least MinTextTransactions transactions; otherwise every page (up to
// opts.MaxPages) is rendered and OCR'd. Unreadable page counts and failed text
// extraction are fatal; failed pages become warnings.
func (c *Converter) Convert(ctx context.Context, pdfPath string, opts Options) (res *models.ConversionResult, err error) {
	start := time.Now()
	log := c.Log.With().
		Str("upload_id", opts.UploadID).
		Str("file", filepath.Base(pdfPath)).
		Logger()
	defer func() {
		c.observe("", start, res, err)
		if err != nil {
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("conversion failed")
			return
		}
		log.Info().
			Str("method", string(res.QaReport.Method)).
			Int("page_count", res.PageCount).
			Int("transactions", res.Transactions).
			Int("warnings", len(res.Warnings)).
			Dur("elapsed", time.Since(start)).
			Msg("conversion finished")
	}()

	if c.Remote != nil {
		return c.convertRemote(ctx, pdfPath, opts, log)
	}

	pageCount, err := c.Pages.PageCount(ctx, pdfPath)
	if err != nil {
		return nil, &FatalDocumentError{Path: pdfPath, Op: "page count", Err: err}
	}

	text, err := c.Text.ExtractText(ctx, pdfPath)
	if err != nil {
		return nil, &FatalDocumentError{Path: pdfPath, Op: "text extraction", Err: err}
	}
	direct := c.Engine.Extract(text, models.MethodText, opts.BankName)
	log.Debug().
		Int("page_count", pageCount).
		Int("direct_transactions", len(direct.Transactions)).
		Msg("direct text extracted")

	var (
		transactions []models.Transaction
		warnings     []string
		qa           models.QaReport
		previewPath  string
	)

	if len(direct.Transactions) >= MinTextTransactions {
		transactions = direct.Transactions
		warnings = append(warnings, direct.Warnings...)
		qa = direct.QaReport
	} else {
		if len(direct.Transactions) > 0 {
			warnings = append(warnings, LowYieldWarning)
		}
		pages := pageCount
		if opts.MaxPages > 0 && opts.MaxPages < pages {
			pages = opts.MaxPages
		}
		log.Info().Int("pages", pages).Msg("falling back to OCR")

		ocr, err := c.ocrDocument(ctx, pdfPath, pages, opts, log)
		if err != nil {
			return nil, err
		}
		transactions, qa, previewPath = ocr.transactions, ocr.qa, ocr.previewPath
		warnings = append(warnings, ocr.warnings...)
	}

	qa.PageCount = pageCount
	qa.Transactions = len(transactions)
	qa.DebitTotal = qa.DebitTotal.Round(2)
	qa.CreditTotal = qa.CreditTotal.Round(2)
	warnings = flagAnomalies(&qa, warnings)

	csv, err := c.Writer.WriteString(transactions)
	if err != nil {
		return nil, err
	}

	return &models.ConversionResult{
		CSV:          csv,
		Transactions: len(transactions),
		PageCount:    pageCount,
		Warnings:     nonNil(warnings),
		QaReport:     qa,
		PreviewPath:  previewPath,
	}, nil
}

func (c *Converter) convertRemote(ctx context.Context, pdfPath string, opts Options, log zerolog.Logger) (*models.ConversionResult, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, &FatalDocumentError{Path: pdfPath, Op: "open", Err: err}
	}
	defer f.Close()

	log.Debug().Msg("delegating to conversion service")
	res, err := c.Remote.Convert(ctx, remote.Request{
		FileName: filepath.Base(pdfPath),
		File:     f,
		BankName: opts.BankName,
		UploadID: opts.UploadID,
	})
	if err != nil {
		var verr *remote.ValidationError
		if errors.As(err, &verr) {
			return nil, &ValidationError{Source: "conversion service response", Err: err}
		}
		return nil, err
	}

	out := &models.ConversionResult{
		CSV:          res.CSV,
		Transactions: res.Transactions,
		PageCount:    res.PageCount,
		Warnings:     nonNil(res.Warnings),
		QaReport:     res.QaReport,
	}
	if res.Preview != nil {
		path, err := c.savePreview(res.Preview.Data, previewExt(res.Preview.MIME), opts.UploadID)
		if err != nil {
			log.Warn().Err(err).Msg("could not keep remote preview")
		} else {
			out.PreviewPath = path
		}
	}
	return out, nil
}

func (c *Converter) previewName(uploadID, ext string) string {
	if uploadID == "" {
		uploadID = "preview-" + uuid.NewString()
	}
	return fmt.Sprintf("%s-%d%s", uploadID, time.Now().UnixNano(), ext)
}

func (c *Converter) previewDir() (string, error) {
	dir := c.Settings.PreviewDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "statement-previews")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create preview dir: %w", err)
	}
	return dir, nil
}

// savePreview writes data into the preview directory.
func (c *Converter) savePreview(data []byte, ext, uploadID string) (string, error) {
	dir, err := c.previewDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, c.previewName(uploadID, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write preview: %w", err)
	}
	return path, nil
}

// copyPreview copies a rendered page image into the preview directory.
func (c *Converter) copyPreview(imagePath, uploadID string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read rendered page: %w", err)
	}
	return c.savePreview(data, filepath.Ext(imagePath), uploadID)
}

func previewExt(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/tiff":
		return ".tiff"
	}
	return ".png"
}
