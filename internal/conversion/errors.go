package conversion

import "fmt"

// FatalDocumentError aborts a conversion: the document itself could not be read.
type FatalDocumentError struct {
	Path string
	Op   string
	Err  error
}

func (e *FatalDocumentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FatalDocumentError) Unwrap() error { return e.Err }

// PageExtractionError is a single page that could not be rendered or OCR'd.
// It is recovered and surfaces as a warning.
type PageExtractionError struct {
	Page int
	Err  error
}

func (e *PageExtractionError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageExtractionError) Unwrap() error { return e.Err }

// ValidationError is malformed input: a CSV or workbook that cannot be read, or a
// remote response that breaks the result schema.
type ValidationError struct {
	Source string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Source, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
