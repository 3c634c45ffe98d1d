package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-converter/internal/config"
	"github.com/insightdelivered/statement-converter/internal/conversion"
	"github.com/insightdelivered/statement-converter/internal/logger"
	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/parser"
	"github.com/insightdelivered/statement-converter/internal/storage"
	"github.com/insightdelivered/statement-converter/internal/worker"
)

const version = "2.0.0"

type options struct {
	bank     string
	output   string
	maxPages int
	uploadID string
	queue    bool
	qaJSON   bool
}

func main() {
	bankFlag := flag.String("bank", "", "Bank name for OCR correction (auto-detected from the text if omitted)")
	outputFlag := flag.String("output", "", "Output CSV file path (defaults to input filename with .csv extension)")
	maxPagesFlag := flag.Int("max-pages", 0, "OCR at most this many pages (0 = all)")
	uploadIDFlag := flag.String("upload-id", "", "Upload id used to name previews and queued jobs")
	queueFlag := flag.Bool("queue", false, "Store the PDF and queue it for the background worker instead of converting locally")
	statusFlag := flag.String("status", "", "Print the recorded status of a queued upload and exit")
	qaFlag := flag.Bool("qa-json", false, "Print the QA report as JSON")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Bank Statement to CSV Converter
by Insight Delivered

Converts bank statements (text PDFs, scanned PDFs, CSV and XLSX exports)
into universal-schema CSV files and reports extraction quality.

Usage:
  statement-converter [flags] <input> [input2 ...]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Convert a statement locally
  statement-converter statement.pdf

  # Scanned ABSA statement, first 5 pages only
  statement-converter -bank=absa -max-pages=5 scan.pdf

  # Normalize a bank CSV or Excel export
  statement-converter export.csv export.xlsx

  # Queue for the background worker and check on it later
  statement-converter -queue -upload-id=jan-2024 statement.pdf
  statement-converter -status=jan-2024
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("statement-converter v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("Configuration error: %v\n", err)
	}
	log := logger.NewFromConfig(cfg.Log.Level, "console", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *statusFlag != "" {
		if err := printStatus(ctx, cfg, *statusFlag); err != nil {
			fatalf("Status lookup failed: %v\n", err)
		}
		return
	}

	if *helpFlag || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	opts := options{
		bank:     *bankFlag,
		output:   *outputFlag,
		maxPages: *maxPagesFlag,
		uploadID: *uploadIDFlag,
		queue:    *queueFlag,
		qaJSON:   *qaFlag,
	}
	if opts.output != "" && flag.NArg() > 1 {
		fatalf("-output can only be used with a single input file\n")
	}

	conv := conversion.NewFromConfig(cfg, log)
	for _, inputPath := range flag.Args() {
		var err error
		if opts.queue {
			err = enqueueFile(ctx, cfg, inputPath, opts)
		} else {
			err = processFile(ctx, conv, inputPath, opts)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", inputPath, err)
			os.Exit(1)
		}
	}
}

func processFile(ctx context.Context, conv *conversion.Converter, inputPath string, opts options) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	fmt.Printf("Processing: %s\n", inputPath)

	var (
		res *models.ConversionResult
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(inputPath)); ext {
	case ".pdf":
		bank := opts.bank
		if bank == "" {
			bank = detectBank(ctx, conv, inputPath)
		}
		if bank != "" {
			fmt.Printf("  Bank: %s\n", bank)
		}
		res, err = conv.Convert(ctx, inputPath, conversion.Options{
			MaxPages: opts.maxPages,
			BankName: bank,
			UploadID: opts.uploadID,
		})
	case ".csv":
		var data []byte
		if data, err = os.ReadFile(inputPath); err == nil {
			res, err = conv.ConvertCSV(string(data))
		}
	case ".xlsx":
		var f *os.File
		if f, err = os.Open(inputPath); err == nil {
			res, err = conv.ConvertXLSX(f)
			f.Close()
		}
	default:
		return fmt.Errorf("expected .pdf, .csv or .xlsx file, got %q", ext)
	}
	if err != nil {
		return err
	}

	outPath := opts.output
	if outPath == "" {
		outPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".csv"
		if strings.EqualFold(outPath, inputPath) {
			outPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".converted.csv"
		}
	}
	if err := os.WriteFile(outPath, []byte(res.CSV), 0o644); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}

	printSummary(res)
	if opts.qaJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("  ", "  ")
		fmt.Print("  ")
		if err := enc.Encode(res.QaReport); err != nil {
			return err
		}
	}
	fmt.Printf("  Output: %s\n", outPath)
	if res.PreviewPath != "" {
		fmt.Printf("  Preview: %s\n", res.PreviewPath)
	}
	fmt.Println("  Done.")
	return nil
}

// detectBank reads the text layer only to pick an OCR correction profile.
func detectBank(ctx context.Context, conv *conversion.Converter, path string) string {
	if conv.Remote != nil || conv.Text == nil {
		return ""
	}
	text, err := conv.Text.ExtractText(ctx, path)
	if err != nil {
		return ""
	}
	return parser.Detect(text)
}

func printSummary(res *models.ConversionResult) {
	qa := res.QaReport
	fmt.Printf("  Method: %s\n", qa.Method)
	if res.PageCount > 0 {
		fmt.Printf("  Pages: %d\n", res.PageCount)
	}
	fmt.Printf("  Transactions: %d\n", res.Transactions)
	fmt.Printf("  Debits: %s  Credits: %s  With balance: %d\n",
		qa.DebitTotal.StringFixed(2), qa.CreditTotal.StringFixed(2), qa.BalanceCount)
	if qa.LineStats != nil {
		fmt.Printf("  Lines: %d matched, %d unmatched of %d\n", qa.MatchedLines, qa.UnmatchedLines, qa.TotalLines)
	}
	if qa.ReconciliationNote != "" {
		fmt.Printf("  Note: %s\n", qa.ReconciliationNote)
	}
	fmt.Printf("  Warnings: %d\n", len(res.Warnings))
	for _, w := range res.Warnings {
		fmt.Printf("    - %s\n", w)
	}

	if res.Transactions == 0 {
		fmt.Println("  Warning: No transactions found. The statement layout may not match expected patterns.")
		fmt.Println("  For scanned statements, try specifying the bank explicitly with -bank.")
	}
}

func enqueueFile(ctx context.Context, cfg *config.Config, inputPath string, opts options) error {
	if strings.ToLower(filepath.Ext(inputPath)) != ".pdf" {
		return fmt.Errorf("only PDF files can be queued")
	}
	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	key := storage.UploadKey(inputPath)
	if err := store.Put(ctx, key, f, "application/pdf"); err != nil {
		return fmt.Errorf("store upload: %w", err)
	}

	uploadID := opts.uploadID
	if uploadID == "" {
		uploadID = strings.Split(strings.TrimPrefix(key, "uploads/"), "/")[0]
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	var statuses worker.StatusStore
	if rdb, err := worker.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err == nil {
		defer rdb.Close()
		statuses = worker.NewRedisStatusStore(rdb, cfg.Worker.StatusTTL)
	}

	info, err := worker.Enqueue(ctx, client, statuses, cfg.Worker.Queue, worker.ConversionPayload{
		UploadID:  uploadID,
		SourceKey: key,
		FileName:  filepath.Base(inputPath),
		BankName:  opts.bank,
		MaxPages:  opts.maxPages,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Queued: %s\n  Upload id: %s\n  Task id: %s\n  Queue: %s\n", inputPath, uploadID, info.ID, info.Queue)
	return nil
}

func printStatus(ctx context.Context, cfg *config.Config, uploadID string) error {
	rdb, err := worker.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	st, err := worker.NewRedisStatusStore(rdb, cfg.Worker.StatusTTL).Get(ctx, uploadID)
	if errors.Is(err, worker.ErrStatusNotFound) {
		return fmt.Errorf("no status recorded for %s", uploadID)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func init() {
	// Totals print as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
