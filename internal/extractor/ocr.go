package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// RenderedPage is one page image written by the renderer.
type RenderedPage struct {
	Page int
	Path string
}

// Renderer rasterizes PDF pages with pdftoppm.
type Renderer struct {
	Runner *Runner
}

// Render writes pages first..last of pdfPath as grayscale PNGs at dpi into dir,
// in one pdftoppm call, and returns them in page order. Pages pdftoppm did not
// produce are absent from the result.
func (r *Renderer) Render(ctx context.Context, pdfPath string, first, last, dpi int, dir string) ([]RenderedPage, error) {
	prefix := filepath.Join(dir, fmt.Sprintf("page-%d", first))
	_, err := r.Runner.Run(ctx, "pdftoppm",
		"-f", strconv.Itoa(first),
		"-l", strconv.Itoa(last),
		"-r", strconv.Itoa(dpi),
		"-gray", "-png",
		pdfPath, prefix,
	)
	if err != nil {
		return nil, err
	}
	return collectPages(prefix, first, last)
}

// collectPages finds prefix-N.png files. pdftoppm zero-pads N to the width of
// the document's page count, so the number is parsed rather than formatted.
func collectPages(prefix string, first, last int) ([]RenderedPage, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	pages := make([]RenderedPage, 0, len(matches))
	for _, m := range matches {
		label := strings.TrimSuffix(strings.TrimPrefix(m, prefix+"-"), ".png")
		n, err := strconv.Atoi(label)
		if err != nil || n < first || n > last {
			continue
		}
		pages = append(pages, RenderedPage{Page: n, Path: m})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
	return pages, nil
}

// Tesseract runs OCR on page images.
type Tesseract struct {
	Runner *Runner
	// TessdataPrefix, when set, is exported as TESSDATA_PREFIX.
	TessdataPrefix string
}

// OCR returns the text tesseract reads from imagePath.
func (t *Tesseract) OCR(ctx context.Context, imagePath, lang string, psm int) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return "", err
	}
	out, err := t.Runner.RunWithEnv(ctx, t.env(), "tesseract",
		imagePath, "stdout", "-l", lang, "--psm", strconv.Itoa(psm))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (t *Tesseract) env() []string {
	if t.TessdataPrefix == "" {
		return nil
	}
	return []string{"TESSDATA_PREFIX=" + t.TessdataPrefix}
}
