// Package extractor wraps the poppler and tesseract command-line tools, with an
// in-process PDF reader as a fallback when poppler is not installed.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultMaxOutput caps the stdout captured from one tool invocation.
const DefaultMaxOutput = 10 << 20

const maxStderr = 64 << 10

// ErrOutputLimit is wrapped by a ToolError when a tool writes more than the cap.
var ErrOutputLimit = errors.New("output exceeded limit")

// ToolError reports a failed external tool invocation: missing binary, non-zero
// exit, timeout or oversized output.
type ToolError struct {
	Tool   string
	Err    error
	Stderr string
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner executes external tools with a per-call timeout and a bounded stdout.
type Runner struct {
	Timeout   time.Duration
	MaxOutput int
}

// NewRunner returns a runner. Zero values fall back to no timeout and DefaultMaxOutput.
func NewRunner(timeout time.Duration, maxOutput int) *Runner {
	return &Runner{Timeout: timeout, MaxOutput: maxOutput}
}

// Run executes name with args and returns its stdout.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.RunWithEnv(ctx, nil, name, args...)
}

// RunWithEnv is Run with extra KEY=VALUE pairs added to the inherited environment.
func (r *Runner) RunWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := r.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	stdout := &limitedBuffer{limit: limit, onOverflow: cancel}
	stderr := &limitedBuffer{limit: maxStderr}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	err := cmd.Run()
	switch {
	case stdout.overflow:
		return nil, &ToolError{Tool: name, Err: ErrOutputLimit}
	case err != nil && ctx.Err() != nil:
		return nil, &ToolError{Tool: name, Err: ctx.Err()}
	case err != nil:
		return nil, &ToolError{Tool: name, Err: err, Stderr: strings.TrimSpace(stderr.buf.String())}
	}
	return stdout.buf.Bytes(), nil
}

// limitedBuffer keeps up to limit bytes. Past that it discards input and calls
// onOverflow once.
type limitedBuffer struct {
	buf        bytes.Buffer
	limit      int
	overflow   bool
	onOverflow func()
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return len(p), nil
	}
	if b.buf.Len()+len(p) > b.limit {
		b.overflow = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

// IsOCRAvailable reports whether pdftoppm and tesseract are on PATH.
func IsOCRAvailable() bool {
	_, errRender := exec.LookPath("pdftoppm")
	_, errOCR := exec.LookPath("tesseract")
	return errRender == nil && errOCR == nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
