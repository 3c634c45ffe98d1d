package remote

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/insightdelivered/statement-converter/internal/models"
)

// DefaultPreviewMIME is assumed when the service sends a preview without a type.
const DefaultPreviewMIME = "image/png"

// maxResponse caps the JSON body read from the service.
const maxResponse = 64 << 20

// Response is the JSON body a conversion service returns. The API server encodes
// it; the client reads it back through decode and validate.
type Response struct {
	CSV           string          `json:"csv"`
	Warnings      []string        `json:"warnings"`
	QaReport      models.QaReport `json:"qaReport"`
	Transactions  int             `json:"transactions"`
	PageCount     int             `json:"pageCount"`
	PreviewBase64 string          `json:"previewBase64,omitempty"`
	PreviewMime   string          `json:"previewMime,omitempty"`
}

// Preview is the page image the service kept for the document.
type Preview struct {
	Data []byte
	MIME string
}

// Result is a validated remote conversion.
type Result struct {
	CSV          string
	Warnings     []string
	QaReport     models.QaReport
	Transactions int
	PageCount    int
	Preview      *Preview
}

// ValidationError is a response that does not satisfy the result schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("conversion service payload: %s %s", e.Field, e.Reason)
}

// wireResult holds the response fields still undecoded, so loosely typed values
// can be checked one by one.
type wireResult struct {
	CSV           json.RawMessage `json:"csv"`
	Warnings      json.RawMessage `json:"warnings"`
	QaReport      json.RawMessage `json:"qaReport"`
	Transactions  json.RawMessage `json:"transactions"`
	PageCount     json.RawMessage `json:"pageCount"`
	PreviewBase64 json.RawMessage `json:"previewBase64"`
	PreviewMime   json.RawMessage `json:"previewMime"`
}

func decode(r io.Reader) (wireResult, error) {
	var w wireResult
	if err := json.NewDecoder(io.LimitReader(r, maxResponse)).Decode(&w); err != nil {
		return wireResult{}, &ValidationError{Field: "body", Reason: "is not a JSON object: " + err.Error()}
	}
	return w, nil
}

func validate(w wireResult) (*Result, error) {
	var csv string
	if !unmarshalAs(w.CSV, &csv) {
		return nil, &ValidationError{Field: "csv", Reason: "is missing"}
	}

	qa, err := validateQa(w.QaReport)
	if err != nil {
		return nil, err
	}

	res := &Result{
		CSV:          csv,
		Warnings:     stringsOnly(w.Warnings),
		QaReport:     qa,
		Transactions: qa.Transactions,
		PageCount:    qa.PageCount,
	}

	var n float64
	if unmarshalAs(w.Transactions, &n) {
		res.Transactions = int(n)
	}
	if unmarshalAs(w.PageCount, &n) {
		res.PageCount = int(n)
	}

	var encoded string
	if unmarshalAs(w.PreviewBase64, &encoded) {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &ValidationError{Field: "previewBase64", Reason: "is not base64"}
		}
		mime := DefaultPreviewMIME
		var m string
		if unmarshalAs(w.PreviewMime, &m) && m != "" {
			mime = m
		}
		res.Preview = &Preview{Data: data, MIME: mime}
	}
	return res, nil
}

func validateQa(raw json.RawMessage) (models.QaReport, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return models.QaReport{}, &ValidationError{Field: "qaReport", Reason: "is missing"}
	}
	var qa models.QaReport
	if err := json.Unmarshal(raw, &qa); err != nil {
		return models.QaReport{}, &ValidationError{Field: "qaReport", Reason: "is malformed: " + err.Error()}
	}
	if !qa.Method.Valid() {
		return models.QaReport{}, &ValidationError{Field: "qaReport.method", Reason: fmt.Sprintf("has unknown value %q", qa.Method)}
	}
	return qa, nil
}

// unmarshalAs decodes raw into v. Absent and null values report false.
func unmarshalAs(raw json.RawMessage, v any) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// stringsOnly keeps the string elements of a JSON array.
func stringsOnly(raw json.RawMessage) []string {
	out := []string{}
	var items []any
	if !unmarshalAs(raw, &items) {
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
