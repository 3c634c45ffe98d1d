// Package conversion turns bank statements into universal-schema CSV. PDFs go
// through direct text extraction first and fall back to page-by-page OCR.
package conversion

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-converter/internal/config"
	"github.com/insightdelivered/statement-converter/internal/extractor"
	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/parser"
	"github.com/insightdelivered/statement-converter/internal/remote"
	"github.com/insightdelivered/statement-converter/internal/tabular"
	"github.com/insightdelivered/statement-converter/internal/writer"
)

// MinTextTransactions is the direct-extraction yield at which OCR is skipped.
const MinTextTransactions = 5

// TextExtractor reads the embedded text layer of a PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// PageCounter reports the number of pages in a PDF.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// Renderer rasterizes a page range into dir.
type Renderer interface {
	Render(ctx context.Context, pdfPath string, first, last, dpi int, dir string) ([]extractor.RenderedPage, error)
}

// OCREngine reads text from a page image.
type OCREngine interface {
	OCR(ctx context.Context, imagePath, lang string, psm int) (string, error)
}

// Remote converts a document on a peer service.
type Remote interface {
	Convert(ctx context.Context, req remote.Request) (*remote.Result, error)
}

// Observer is told about every conversion and every OCR page.
type Observer interface {
	ConversionFinished(method models.Method, elapsed time.Duration, transactions int, err error)
	PageProcessed(page int, err error)
}

// Settings tune the OCR path.
type Settings struct {
	DPI         int
	BatchSize   int
	Language    string
	PSM         int
	Concurrency int
	Currency    string
	// PreviewDir receives the retained preview image.
	PreviewDir string
	// TempDir holds rendered pages while a conversion runs; "" means os.TempDir.
	TempDir string
}

// DefaultSettings renders at 300 DPI in batches of ten and OCRs in English
// assuming a uniform block of text.
func DefaultSettings() Settings {
	return Settings{
		DPI:         300,
		BatchSize:   10,
		Language:    "eng",
		PSM:         6,
		Concurrency: 1,
		Currency:    parser.DefaultCurrency,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.DPI <= 0 {
		s.DPI = d.DPI
	}
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.PSM <= 0 {
		s.PSM = d.PSM
	}
	if s.Concurrency <= 0 {
		s.Concurrency = d.Concurrency
	}
	if s.Currency == "" {
		s.Currency = d.Currency
	}
	return s
}

// Options are per-document inputs.
type Options struct {
	// MaxPages limits how many pages are OCR'd; 0 means all.
	MaxPages int
	BankName string
	UploadID string
}

// Converter runs conversions. Collaborators are exported so tests and callers can
// swap them; New wires the command-line tools.
type Converter struct {
	Text     TextExtractor
	Pages    PageCounter
	Renderer Renderer
	OCR      OCREngine
	Remote   Remote
	Observer Observer

	Engine  *parser.Engine
	Tabular *tabular.Normalizer
	Writer  *writer.CSVWriter

	Settings Settings
	Log      zerolog.Logger
}

// New returns a converter backed by poppler and tesseract through runner.
func New(settings Settings, runner *extractor.Runner, tessdataPrefix string, log zerolog.Logger) *Converter {
	settings = settings.withDefaults()

	engine := parser.NewEngine()
	engine.Currency = settings.Currency

	return &Converter{
		Text:     &extractor.TextExtractor{Runner: runner},
		Pages:    &extractor.PageCounter{Runner: runner},
		Renderer: &extractor.Renderer{Runner: runner},
		OCR:      &extractor.Tesseract{Runner: runner, TessdataPrefix: tessdataPrefix},
		Engine:   engine,
		Tabular:  &tabular.Normalizer{Currency: settings.Currency},
		Writer:   &writer.CSVWriter{},
		Settings: settings,
		Log:      log,
	}
}

// NewFromConfig builds a converter from loaded configuration. A configured
// conversion service URL makes PDF conversion remote.
func NewFromConfig(cfg *config.Config, log zerolog.Logger) *Converter {
	settings := Settings{
		DPI:         cfg.OCR.DPI,
		BatchSize:   cfg.OCR.BatchSize,
		Language:    cfg.OCR.Language,
		PSM:         cfg.OCR.PSM,
		Concurrency: cfg.OCR.Concurrency,
		Currency:    cfg.DefaultCurrency,
		PreviewDir:  cfg.PreviewDir,
	}
	runner := extractor.NewRunner(cfg.Tools.Timeout, cfg.Tools.MaxOutputBytes)
	c := New(settings, runner, cfg.OCR.TessdataPrefix, log)
	return c.WithRemote(remote.New(cfg.Remote.URL, cfg.Remote.Token, &http.Client{Timeout: cfg.Remote.Timeout}))
}

// WithRemote delegates PDF conversion to c. A nil client leaves conversion local.
func (c *Converter) WithRemote(client *remote.Client) *Converter {
	if client != nil {
		c.Remote = client
	}
	return c
}

func (c *Converter) observe(method models.Method, start time.Time, res *models.ConversionResult, err error) {
	if c.Observer == nil {
		return
	}
	n := 0
	if res != nil {
		n = res.Transactions
		method = res.QaReport.Method
	}
	c.Observer.ConversionFinished(method, time.Since(start), n, err)
}

// ConvertCSV normalizes an already-tabular export.
func (c *Converter) ConvertCSV(text string) (res *models.ConversionResult, err error) {
	start := time.Now()
	defer func() { c.observe(models.MethodCSV, start, res, err) }()

	extracted, err := c.Tabular.ConvertCSV(text)
	if err != nil {
		return nil, &ValidationError{Source: "csv", Err: err}
	}
	return c.tabularResult(extracted)
}

// ConvertXLSX normalizes the transaction sheet of an Excel export.
func (c *Converter) ConvertXLSX(r io.Reader) (res *models.ConversionResult, err error) {
	start := time.Now()
	defer func() { c.observe(models.MethodCSV, start, res, err) }()

	extracted, err := c.Tabular.ConvertXLSX(r)
	if err != nil {
		return nil, &ValidationError{Source: "workbook", Err: err}
	}
	return c.tabularResult(extracted)
}

func (c *Converter) tabularResult(extracted models.ExtractionResult) (*models.ConversionResult, error) {
	out := &models.ConversionResult{
		Transactions: len(extracted.Transactions),
		Warnings:     nonNil(extracted.Warnings),
		QaReport:     extracted.QaReport,
	}
	if len(extracted.Transactions) == 0 {
		return out, nil
	}
	csv, err := c.Writer.WriteString(extracted.Transactions)
	if err != nil {
		return nil, err
	}
	out.CSV = csv
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
