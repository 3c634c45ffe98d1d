package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-converter/internal/api"
	"github.com/insightdelivered/statement-converter/internal/config"
	"github.com/insightdelivered/statement-converter/internal/conversion"
	"github.com/insightdelivered/statement-converter/internal/extractor"
	"github.com/insightdelivered/statement-converter/internal/logger"
	"github.com/insightdelivered/statement-converter/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	// Totals go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	// This process is the conversion service; it never delegates to itself.
	cfg.Remote.URL = ""
	conv := conversion.NewFromConfig(cfg, log)

	handler := &api.Handler{
		Converter:   conv,
		Token:       cfg.Server.Token,
		MaxFileSize: cfg.Server.MaxFileSizeBytes,
		Log:         log,
	}
	if cfg.Server.MetricsEnabled {
		collector := metrics.New()
		conv.Observer = collector
		handler.Metrics = collector.Handler()
	}
	if !extractor.IsOCRAvailable() {
		log.Warn().Msg("tesseract or pdftoppm not found; scanned statements will fail to convert")
	}

	app := api.NewApp(handler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("shutting down conversion service")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Bool("auth", cfg.Server.Token != "").Msg("conversion-service listening")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
