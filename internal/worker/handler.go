package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-converter/internal/conversion"
	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/storage"
)

// Converter converts a PDF on local disk.
type Converter interface {
	Convert(ctx context.Context, pdfPath string, opts conversion.Options) (*models.ConversionResult, error)
}

// Handler runs conversion tasks.
type Handler struct {
	Converter Converter
	Store     storage.Store
	Statuses  StatusStore
	// TempDir receives the downloaded PDF; "" means os.TempDir.
	TempDir string
	Log     zerolog.Logger
}

// RegisterHandlers wires h into mux.
func RegisterHandlers(mux *asynq.ServeMux, h *Handler) {
	mux.HandleFunc(TypeConvertPDF, h.HandleConversion)
}

// HandleConversion downloads the source PDF, converts it, stores the CSV and the
// preview, and records the outcome. Errors that a retry cannot fix skip retries.
func (h *Handler) HandleConversion(ctx context.Context, task *asynq.Task) error {
	var p ConversionPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	log := h.Log.With().Str("upload_id", p.UploadID).Str("file", p.FileName).Logger()
	start := time.Now()

	if err := h.setStatus(ctx, Status{UploadID: p.UploadID, State: StateConverting, SourceKey: p.SourceKey}); err != nil {
		return err
	}

	st, err := h.convert(ctx, p, log)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("conversion task failed")
		failed := Status{UploadID: p.UploadID, State: StateFailed, SourceKey: p.SourceKey, Error: err.Error()}
		if serr := h.setStatus(ctx, failed); serr != nil {
			log.Warn().Err(serr).Msg("could not record failure")
		}
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.Info().
		Str("method", string(st.QaReport.Method)).
		Int("transactions", st.Transactions).
		Int("warnings", len(st.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("conversion task finished")
	return h.setStatus(ctx, st)
}

func (h *Handler) convert(ctx context.Context, p ConversionPayload, log zerolog.Logger) (Status, error) {
	pdfPath, cleanup, err := h.download(ctx, p)
	if err != nil {
		return Status{}, err
	}
	defer cleanup()

	res, err := h.Converter.Convert(ctx, pdfPath, conversion.Options{
		MaxPages: p.MaxPages,
		BankName: p.BankName,
		UploadID: p.UploadID,
	})
	if err != nil {
		return Status{}, err
	}

	st := Status{
		UploadID:     p.UploadID,
		State:        StateConverted,
		SourceKey:    p.SourceKey,
		CSVKey:       storage.ConvertedKey(p.UploadID),
		Transactions: res.Transactions,
		PageCount:    res.PageCount,
		Warnings:     res.Warnings,
		QaReport:     &res.QaReport,
	}
	if err := h.Store.Put(ctx, st.CSVKey, bytes.NewBufferString(res.CSV), "text/csv"); err != nil {
		return Status{}, fmt.Errorf("store csv: %w", err)
	}

	if res.PreviewPath != "" {
		if err := h.storePreview(ctx, res.PreviewPath, storage.PreviewKey(p.UploadID)); err != nil {
			log.Warn().Err(err).Msg("could not store preview")
		} else {
			st.PreviewKey = storage.PreviewKey(p.UploadID)
		}
	}
	return st, nil
}

// download copies the source object to a temporary file.
func (h *Handler) download(ctx context.Context, p ConversionPayload) (string, func(), error) {
	rc, err := h.Store.Get(ctx, p.SourceKey)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	f, err := os.CreateTemp(h.TempDir, "statement-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", p.SourceKey, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", p.SourceKey, err)
	}
	return f.Name(), cleanup, nil
}

// storePreview uploads the preview image and removes the local copy.
func (h *Handler) storePreview(ctx context.Context, path, key string) error {
	defer os.Remove(path)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return h.Store.Put(ctx, key, f, previewContentType(path))
}

func previewContentType(path string) string {
	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff", ".tif":
		return "image/tiff"
	}
	return "image/png"
}

func (h *Handler) setStatus(ctx context.Context, s Status) error {
	if h.Statuses == nil {
		return nil
	}
	return h.Statuses.Set(ctx, s)
}

// permanent reports errors a retry would reproduce.
func permanent(err error) bool {
	var (
		fatal *conversion.FatalDocumentError
		verr  *conversion.ValidationError
	)
	return errors.As(err, &fatal) || errors.As(err, &verr) || errors.Is(err, storage.ErrNotFound)
}
