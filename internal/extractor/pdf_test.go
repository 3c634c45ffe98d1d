package extractor

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParsePages(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    int
		wantErr bool
	}{
		{"typical", "Title:          Statement\nPages:          3\nEncrypted:      no\n", 3, false},
		{"tabs", "Pages:\t12\n", 12, false},
		{"missing", "Title: Statement\n", 0, true},
		{"zero", "Pages: 0\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePages([]byte(tt.output))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePages error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parsePages: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPageCounter_NonexistentFile(t *testing.T) {
	c := &PageCounter{Runner: NewRunner(5*time.Second, 0)}
	if _, err := c.PageCount(context.Background(), "/tmp/nonexistent-file-12345.pdf"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestTextExtractor_NonexistentFile(t *testing.T) {
	x := &TextExtractor{Runner: NewRunner(5*time.Second, 0)}
	if _, err := x.ExtractText(context.Background(), "/tmp/nonexistent-file-12345.pdf"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestIsReadableText(t *testing.T) {
	tests := []struct {
		name     string
		pages    []string
		expected bool
	}{
		{"statement text", []string{"Account Statement\n15/01/24 Grocery Store 150.00 500.00 closing balance"}, true},
		{"too short", []string{"Balance 5.00"}, false},
		{"no statement words", []string{strings.Repeat("lorem ipsum dolor sit amet ", 5)}, false},
		{"mis-decoded glyphs", []string{strings.Repeat("ÿþýüûúùø", 10) + " balance"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isReadableText(tt.pages); got != tt.expected {
				t.Errorf("isReadableText: got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCollectPages(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "page-11")
	for _, name := range []string{"page-11-12.png", "page-11-011.png", "page-11-20.png", "page-11-xx.png", "page-1-01.png", "page-11-13.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := collectPages(prefix, 11, 15)
	if err != nil {
		t.Fatalf("collectPages: %v", err)
	}
	want := []RenderedPage{
		{Page: 11, Path: filepath.Join(dir, "page-11-011.png")},
		{Page: 12, Path: filepath.Join(dir, "page-11-12.png")},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collectPages:\n got %+v\nwant %+v", got, want)
	}
}

func TestTesseract_Env(t *testing.T) {
	if env := (&Tesseract{}).env(); env != nil {
		t.Errorf("expected no env, got %v", env)
	}
	env := (&Tesseract{TessdataPrefix: "/usr/share/tessdata"}).env()
	if len(env) != 1 || env[0] != "TESSDATA_PREFIX=/usr/share/tessdata" {
		t.Errorf("env: got %v", env)
	}
}

func TestTesseract_MissingImage(t *testing.T) {
	tess := &Tesseract{Runner: NewRunner(time.Second, 0)}
	if _, err := tess.OCR(context.Background(), filepath.Join(t.TempDir(), "missing.png"), "eng", 6); err == nil {
		t.Error("expected error for missing image")
	}
}
