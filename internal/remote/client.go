// Package remote delegates PDF conversion to a peer conversion service over HTTP.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// DefaultTimeout bounds a whole remote conversion when no client is supplied.
const DefaultTimeout = 5 * time.Minute

const maxErrorBody = 4 << 10

// Request is one document to convert remotely.
type Request struct {
	FileName string
	File     io.Reader
	BankName string
	UploadID string
}

// StatusError is a non-2xx answer from the conversion service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("conversion service failed: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("conversion service failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client talks to a conversion service rooted at a base URL.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL, or nil when baseURL is empty, which callers
// treat as "convert locally". token is sent as a bearer token when set.
func New(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

// BaseURL returns the service root the client posts to.
func (c *Client) BaseURL() string { return c.baseURL }

// Convert posts the document to {base}/convert-pdf and returns the validated result.
func (c *Client) Convert(ctx context.Context, req Request) (*Result, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert-pdf", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("conversion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	w, err := decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return validate(w)
}

// Health checks GET {base}/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("conversion service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func encodeForm(req Request) (io.Reader, string, error) {
	if req.File == nil {
		return nil, "", fmt.Errorf("request has no file")
	}
	name := req.FileName
	if name == "" {
		name = "statement.pdf"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}

	if err := mw.WriteField("uploadId", req.UploadID); err != nil {
		return nil, "", err
	}
	if req.BankName != "" {
		if err := mw.WriteField("bankName", req.BankName); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
