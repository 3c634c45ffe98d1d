package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-converter/internal/models"
)

func TestCollector_ConversionFinished(t *testing.T) {
	c := New()

	c.ConversionFinished(models.MethodText, 2*time.Second, 12, nil)
	c.ConversionFinished(models.MethodOCR, 40*time.Second, 3, nil)
	c.ConversionFinished("", time.Second, 0, errors.New("page count"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.conversions.WithLabelValues("text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conversions.WithLabelValues("ocr", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conversions.WithLabelValues("unknown", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.transactions.WithLabelValues("text")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.transactions.WithLabelValues("ocr")))
}

func TestCollector_PageProcessed(t *testing.T) {
	c := New()

	c.PageProcessed(1, nil)
	c.PageProcessed(2, nil)
	c.PageProcessed(3, errors.New("tesseract"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ocrPages.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ocrPages.WithLabelValues("failed")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.PageProcessed(1, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "statement_converter_ocr_pages_total")
	assert.Contains(t, string(body), "go_goroutines")
}
