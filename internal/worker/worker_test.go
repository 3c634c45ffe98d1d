package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-converter/internal/conversion"
	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/storage"
)

type fakeConverter struct {
	gotPath string
	gotBody string
	gotOpts conversion.Options
	result  *models.ConversionResult
	err     error
}

func (f *fakeConverter) Convert(_ context.Context, pdfPath string, opts conversion.Options) (*models.ConversionResult, error) {
	f.gotPath, f.gotOpts = pdfPath, opts
	data, _ := os.ReadFile(pdfPath)
	f.gotBody = string(data)
	return f.result, f.err
}

type memStatuses struct {
	mu      sync.Mutex
	history []Status
}

func (m *memStatuses) Set(_ context.Context, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, s)
	return nil
}

func (m *memStatuses) Get(_ context.Context, id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].UploadID == id {
			return m.history[i], nil
		}
	}
	return Status{}, ErrStatusNotFound
}

func (m *memStatuses) states() []State {
	var out []State
	for _, s := range m.history {
		out = append(out, s.State)
	}
	return out
}

type harness struct {
	handler  *Handler
	conv     *fakeConverter
	store    *storage.Local
	statuses *memStatuses
	tempDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		conv:     &fakeConverter{},
		store:    store,
		statuses: &memStatuses{},
		tempDir:  t.TempDir(),
	}
	h.handler = &Handler{
		Converter: h.conv,
		Store:     store,
		Statuses:  h.statuses,
		TempDir:   h.tempDir,
		Log:       zerolog.Nop(),
	}
	return h
}

func task(t *testing.T, p ConversionPayload) *asynq.Task {
	t.Helper()
	tk, err := NewConversionTask(p)
	require.NoError(t, err)
	return tk
}

func TestNewConversionTask(t *testing.T) {
	tk, err := NewConversionTask(ConversionPayload{UploadID: "u-1", SourceKey: "uploads/x/jan.pdf", FileName: "jan.pdf", MaxPages: 3})
	require.NoError(t, err)
	assert.Equal(t, TypeConvertPDF, tk.Type())

	var p ConversionPayload
	require.NoError(t, json.Unmarshal(tk.Payload(), &p))
	assert.Equal(t, "u-1", p.UploadID)
	assert.Equal(t, 3, p.MaxPages)

	_, err = NewConversionTask(ConversionPayload{UploadID: "u-1"})
	assert.Error(t, err)
}

func TestHandleConversion_Success(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.Put(ctx, "uploads/a/jan.pdf", strings.NewReader("%PDF-1.7"), "application/pdf"))

	preview := filepath.Join(t.TempDir(), "u-1-1.png")
	require.NoError(t, os.WriteFile(preview, []byte("png"), 0o644))
	h.conv.result = &models.ConversionResult{
		CSV:          "date,description\n",
		Transactions: 7,
		PageCount:    2,
		Warnings:     []string{"Page 2: OCR failed. boom"},
		QaReport:     models.QaReport{Method: models.MethodOCR, PageCount: 2, Transactions: 7},
		PreviewPath:  preview,
	}

	err := h.handler.HandleConversion(ctx, task(t, ConversionPayload{
		UploadID: "u-1", SourceKey: "uploads/a/jan.pdf", FileName: "jan.pdf", BankName: "ABSA", MaxPages: 4,
	}))
	require.NoError(t, err)

	assert.Equal(t, "%PDF-1.7", h.conv.gotBody)
	assert.Equal(t, conversion.Options{MaxPages: 4, BankName: "ABSA", UploadID: "u-1"}, h.conv.gotOpts)
	_, err = os.Stat(h.conv.gotPath)
	assert.True(t, os.IsNotExist(err), "downloaded PDF is removed")
	_, err = os.Stat(preview)
	assert.True(t, os.IsNotExist(err), "local preview is removed once stored")

	csv, err := storage.ReadAll(ctx, h.store, "converted/u-1.csv")
	require.NoError(t, err)
	assert.Equal(t, "date,description\n", string(csv))
	img, err := storage.ReadAll(ctx, h.store, "previews/u-1-preview.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(img))

	assert.Equal(t, []State{StateConverting, StateConverted}, h.statuses.states())
	final, err := h.statuses.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "converted/u-1.csv", final.CSVKey)
	assert.Equal(t, "previews/u-1-preview.png", final.PreviewKey)
	assert.Equal(t, 7, final.Transactions)
	assert.Equal(t, []string{"Page 2: OCR failed. boom"}, final.Warnings)
	require.NotNil(t, final.QaReport)
	assert.Equal(t, models.MethodOCR, final.QaReport.Method)
}

func TestHandleConversion_NoPreview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.Put(ctx, "uploads/b/feb.pdf", strings.NewReader("%PDF"), "application/pdf"))
	h.conv.result = &models.ConversionResult{CSV: "x", QaReport: models.QaReport{Method: models.MethodText}}

	require.NoError(t, h.handler.HandleConversion(ctx, task(t, ConversionPayload{UploadID: "u-2", SourceKey: "uploads/b/feb.pdf"})))

	final, err := h.statuses.Get(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, final.PreviewKey)
	_, err = h.store.Get(ctx, "previews/u-2-preview.png")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleConversion_Failures(t *testing.T) {
	tests := []struct {
		name      string
		upload    bool
		err       error
		skipRetry bool
	}{
		{"fatal document", true, &conversion.FatalDocumentError{Path: "x", Op: "page count", Err: errors.New("bad pdf")}, true},
		{"invalid remote response", true, &conversion.ValidationError{Source: "conversion service response", Err: errors.New("csv missing")}, true},
		{"transient", true, errors.New("connection reset"), false},
		{"missing source", false, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			if tt.upload {
				require.NoError(t, h.store.Put(ctx, "uploads/c/mar.pdf", strings.NewReader("%PDF"), "application/pdf"))
			}
			h.conv.err = tt.err

			err := h.handler.HandleConversion(ctx, task(t, ConversionPayload{UploadID: "u-3", SourceKey: "uploads/c/mar.pdf"}))
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))

			final, gerr := h.statuses.Get(ctx, "u-3")
			require.NoError(t, gerr)
			assert.Equal(t, StateFailed, final.State)
			assert.NotEmpty(t, final.Error)

			entries, rerr := os.ReadDir(h.tempDir)
			require.NoError(t, rerr)
			assert.Empty(t, entries)
		})
	}
}

func TestHandleConversion_BadPayload(t *testing.T) {
	h := newHarness(t)
	err := h.handler.HandleConversion(context.Background(), asynq.NewTask(TypeConvertPDF, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, h.statuses.history)
}

func TestRegisterHandlers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.Put(ctx, "uploads/d/apr.pdf", strings.NewReader("%PDF"), "application/pdf"))
	h.conv.result = &models.ConversionResult{QaReport: models.QaReport{Method: models.MethodText}}

	mux := asynq.NewServeMux()
	RegisterHandlers(mux, h.handler)

	require.NoError(t, mux.ProcessTask(ctx, task(t, ConversionPayload{UploadID: "u-4", SourceKey: "uploads/d/apr.pdf"})))
	assert.Equal(t, []State{StateConverting, StateConverted}, h.statuses.states())
}

func TestRedisStatusStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	s := NewRedisStatusStore(client, time.Hour)

	err := s.Set(context.Background(), Status{UploadID: "u-5", State: StateQueued})
	assert.ErrorContains(t, err, "save status of u-5")

	_, err = s.Get(context.Background(), "u-5")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStatusNotFound)
}

func TestStatus_NumericTotals(t *testing.T) {
	prev := decimal.MarshalJSONWithoutQuotes
	decimal.MarshalJSONWithoutQuotes = true
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = prev })

	st := Status{
		UploadID: "u-7",
		State:    StateConverted,
		QaReport: &models.QaReport{
			DebitTotal:  decimal.RequireFromString("12.50"),
			CreditTotal: decimal.RequireFromString("100"),
		},
	}
	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"debitTotal":12.5`)
	assert.Contains(t, string(data), `"creditTotal":100`)

	var back Status
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.QaReport)
	assert.True(t, back.QaReport.DebitTotal.Equal(decimal.RequireFromString("12.50")))
}

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "conversion:status:u-6", statusKey("u-6"))
}

func TestPreviewContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", previewContentType("a.jpg"))
	assert.Equal(t, "image/tiff", previewContentType("a.tiff"))
	assert.Equal(t, "image/png", previewContentType("a.png"))
}
