package conversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-converter/internal/extractor"
	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/remote"
)

type fakeText struct {
	text string
	err  error
}

func (f *fakeText) ExtractText(context.Context, string) (string, error) { return f.text, f.err }

type fakePages struct {
	n   int
	err error
}

func (f *fakePages) PageCount(context.Context, string) (int, error) { return f.n, f.err }

// fakeRenderer writes "page N" into one file per page.
type fakeRenderer struct {
	mu      sync.Mutex
	batches [][2]int
	failAt  map[int]error // keyed by the batch's first page
	skip    map[int]bool
}

func (f *fakeRenderer) Render(_ context.Context, _ string, first, last, _ int, dir string) ([]extractor.RenderedPage, error) {
	f.mu.Lock()
	f.batches = append(f.batches, [2]int{first, last})
	f.mu.Unlock()

	if err := f.failAt[first]; err != nil {
		return nil, err
	}
	var pages []extractor.RenderedPage
	for p := first; p <= last; p++ {
		if f.skip[p] {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("page-%d-%d.png", first, p))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("page %d", p)), 0o644); err != nil {
			return nil, err
		}
		pages = append(pages, extractor.RenderedPage{Page: p, Path: path})
	}
	return pages, nil
}

// fakeOCR answers with the text configured for the page named in the image.
type fakeOCR struct {
	mu    sync.Mutex
	texts map[int]string
	fail  map[int]error
	seen  []string
}

func (f *fakeOCR) OCR(_ context.Context, imagePath, lang string, psm int) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}
	page, err := strconv.Atoi(strings.TrimPrefix(string(data), "page "))
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.seen = append(f.seen, imagePath)
	f.mu.Unlock()

	if err := f.fail[page]; err != nil {
		return "", err
	}
	return f.texts[page], nil
}

type fakeRemote struct {
	req    remote.Request
	body   string
	result *remote.Result
	err    error
}

func (f *fakeRemote) Convert(_ context.Context, req remote.Request) (*remote.Result, error) {
	f.req = req
	if req.File != nil {
		data := make([]byte, 64)
		n, _ := req.File.Read(data)
		f.body = string(data[:n])
	}
	return f.result, f.err
}

type recordingObserver struct {
	mu          sync.Mutex
	conversions []models.Method
	errs        []error
	pagesOK     int
	pagesFailed int
}

func (o *recordingObserver) ConversionFinished(method models.Method, _ time.Duration, _ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conversions = append(o.conversions, method)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) PageProcessed(_ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.pagesFailed++
		return
	}
	o.pagesOK++
}

type fixture struct {
	text     *fakeText
	pages    *fakePages
	renderer *fakeRenderer
	ocr      *fakeOCR
	observer *recordingObserver
	conv     *Converter
	tempDir  string
	previews string
}

func newFixture(t *testing.T, directText string, pageCount int, ocrTexts map[int]string) *fixture {
	t.Helper()
	f := &fixture{
		text:     &fakeText{text: directText},
		pages:    &fakePages{n: pageCount},
		renderer: &fakeRenderer{failAt: map[int]error{}, skip: map[int]bool{}},
		ocr:      &fakeOCR{texts: ocrTexts, fail: map[int]error{}},
		observer: &recordingObserver{},
		tempDir:  t.TempDir(),
		previews: t.TempDir(),
	}

	settings := DefaultSettings()
	settings.TempDir = f.tempDir
	settings.PreviewDir = f.previews

	c := New(settings, extractor.NewRunner(time.Second, 0), "", zerolog.Nop())
	c.Text, c.Pages, c.Renderer, c.OCR = f.text, f.pages, f.renderer, f.ocr
	c.Observer = f.observer
	f.conv = c
	return f
}

func (f *fixture) convert(t *testing.T, opts Options) *models.ConversionResult {
	t.Helper()
	res, err := f.conv.Convert(context.Background(), "/statements/jan.pdf", opts)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return res
}

func (f *fixture) previewFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.previews)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// statementLines returns n dated debit lines as direct text.
func statementLines(n int) string {
	lines := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		lines = append(lines, fmt.Sprintf("%02d/01/24 Card purchase 10.00 %d.00", i, 1000-10*i))
	}
	return strings.Join(lines, "\n")
}

// pageText returns two transactions for page p. Lines end in words so the OCR
// digit re-joining never merges them.
func pageText(p int) string {
	return fmt.Sprintf("1%d/02/24 4.50 95.50 Coffee\n2%d/02/24 10.00 85.50 Bakery", p, p)
}

var errBoom = errors.New("boom")
