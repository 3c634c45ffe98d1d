// Package api is the HTTP surface of the conversion service.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-converter/internal/conversion"
	"github.com/insightdelivered/statement-converter/internal/models"
	"github.com/insightdelivered/statement-converter/internal/remote"
)

// DefaultMaxFileSize is the upload limit when none is configured.
const DefaultMaxFileSize = 50 << 20

// Converter is the pipeline behind the endpoints.
type Converter interface {
	Convert(ctx context.Context, pdfPath string, opts conversion.Options) (*models.ConversionResult, error)
	ConvertCSV(text string) (*models.ConversionResult, error)
	ConvertXLSX(r io.Reader) (*models.ConversionResult, error)
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Converter Converter
	// Token, when set, must be presented as a bearer token on conversion routes.
	Token       string
	MaxFileSize int
	// TempDir receives uploaded PDFs while they convert.
	TempDir string
	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
	Log     zerolog.Logger
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) maxFileSize() int {
	if h.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return h.MaxFileSize
}

// NewApp returns a fiber app with the routes registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "conversion-service",
		// Multipart framing and form fields ride on top of the file itself.
		BodyLimit:             h.maxFileSize() + 1<<20,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(h.requestLogger)
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/health", h.handleHealth)
	if h.Metrics != nil {
		r.Get("/metrics", adaptor.HTTPHandler(h.Metrics))
	}
	r.Post("/convert-pdf", h.authorize, h.handleConvertPDF)
	r.Post("/convert-csv", h.authorize, h.handleConvertCSV)
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) authorize(c *fiber.Ctx) error {
	if h.Token == "" {
		return c.Next()
	}
	scheme, token, _ := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !strings.EqualFold(scheme, "bearer") || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.Token)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized.")
	}
	return c.Next()
}

func (h *Handler) handleConvertPDF(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "No file provided.")
	}
	if file.Size > int64(h.maxFileSize()) {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "File exceeds the upload limit.")
	}

	uploadID := strings.TrimSpace(c.FormValue("uploadId"))
	if uploadID == "" {
		uploadID = uuid.NewString()
	}
	bankName := strings.TrimSpace(c.FormValue("bankName"))

	name := file.Filename
	if name == "" {
		name = uploadID + ".pdf"
	}
	if strings.ToLower(filepath.Ext(name)) != ".pdf" {
		return fiber.NewError(fiber.StatusBadRequest, "Only PDF files are supported.")
	}

	dir := h.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmp := filepath.Join(dir, fmt.Sprintf("pa-%s-%d.pdf", filepath.Base(uploadID), time.Now().UnixNano()))
	if err := c.SaveFile(file, tmp); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	defer os.Remove(tmp)

	res, err := h.Converter.Convert(c.UserContext(), tmp, conversion.Options{
		BankName: bankName,
		UploadID: uploadID,
	})
	if err != nil {
		return conversionError(err)
	}

	resp := remote.Response{
		CSV:          res.CSV,
		Warnings:     res.Warnings,
		QaReport:     res.QaReport,
		Transactions: res.Transactions,
		PageCount:    res.PageCount,
	}
	if res.PreviewPath != "" {
		data, err := os.ReadFile(res.PreviewPath)
		if err != nil {
			h.Log.Warn().Err(err).Str("upload_id", uploadID).Msg("preview unreadable")
		} else {
			resp.PreviewBase64 = base64.StdEncoding.EncodeToString(data)
			resp.PreviewMime = previewMime(res.PreviewPath)
		}
		os.Remove(res.PreviewPath)
	}
	return c.JSON(resp)
}

// handleConvertCSV accepts a multipart "file" (.csv or .xlsx) or a raw CSV body.
func (h *Handler) handleConvertCSV(c *fiber.Ctx) error {
	var (
		res *models.ConversionResult
		err error
	)
	if file, ferr := c.FormFile("file"); ferr == nil {
		if file.Size > int64(h.maxFileSize()) {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "File exceeds the upload limit.")
		}
		f, oerr := file.Open()
		if oerr != nil {
			return fmt.Errorf("open upload: %w", oerr)
		}
		defer f.Close()

		switch strings.ToLower(filepath.Ext(file.Filename)) {
		case ".xlsx":
			res, err = h.Converter.ConvertXLSX(f)
		case ".csv", ".txt", "":
			data, rerr := io.ReadAll(f)
			if rerr != nil {
				return fmt.Errorf("read upload: %w", rerr)
			}
			res, err = h.Converter.ConvertCSV(string(data))
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Only CSV and XLSX files are supported.")
		}
	} else {
		body := c.Body()
		if len(body) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No file provided.")
		}
		res, err = h.Converter.ConvertCSV(string(body))
	}
	if err != nil {
		return conversionError(err)
	}
	return c.JSON(res)
}

func conversionError(err error) error {
	var verr *conversion.ValidationError
	if errors.As(err, &verr) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

func (h *Handler) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		status = ferr.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}
	h.Log.Info().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("request")
	return err
}

func previewMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff", ".tif":
		return "image/tiff"
	}
	return "image/png"
}
