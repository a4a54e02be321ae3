package server

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/voyatech/ticketcheck/internal/cache"
	"github.com/voyatech/ticketcheck/internal/extract"
	"github.com/voyatech/ticketcheck/internal/pipeline"
	"github.com/voyatech/ticketcheck/internal/store"
	"github.com/voyatech/ticketcheck/models"
)

// ValidateHandler serves ticket uploads and the administrative endpoints.
type ValidateHandler struct {
	Pipeline  *pipeline.Pipeline
	Extractor *extract.Extractor
	Cache     cache.Cache
	Store     *store.Store
	MaxUpload int64
	Logger    *log.Logger
}

func (h *ValidateHandler) Register(g *echo.Group, secret []byte) {
	g.POST("/validate", h.validate)

	admin := g.Group("")
	admin.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	admin.POST("/clear-cache", h.clearCache)
	admin.GET("/validations/recent", h.recent)
}

func (h *ValidateHandler) validate(c echo.Context) error {
	fileHeader, err := c.FormFile("ticket_image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file provided (field ticket_image)")
	}
	if h.MaxUpload > 0 && fileHeader.Size > h.MaxUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds upload limit")
	}

	contentType, data, err := readUpload(fileHeader)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported file type (images and PDF only)")
	}

	opts := pipeline.Options{
		VerifyFlight:     boolParam(c, "verify_flight"),
		ForceCacheBypass: boolParam(c, "no_cache"),
	}

	doc := models.Document{Data: data, ContentType: contentType}
	start := time.Now()
	result, err := h.Pipeline.Run(c.Request().Context(), doc, opts)
	if err != nil {
		var exErr *models.ExtractionError
		if errors.As(err, &exErr) {
			// Distinct failure: recognition itself failed, there is no verdict.
			return echo.NewHTTPError(http.StatusBadGateway, exErr.Error())
		}
		return err
	}

	if h.Store != nil {
		rec := store.ValidationRecord{
			Fingerprint:  h.Extractor.Fingerprint(doc),
			IsValid:      result.Validation.IsValid,
			ErrorCount:   len(result.Validation.Errors),
			FlightNumber: result.Ticket.FlightNumber,
			Verified:     result.Verification.Verified,
			DurationMS:   time.Since(start).Milliseconds(),
		}
		if _, recErr := h.Store.RecordValidation(c.Request().Context(), rec); recErr != nil {
			h.Logger.Printf("audit record failed: %v", recErr)
		}
	}

	return c.JSON(http.StatusOK, toValidateResponse(result))
}

func (h *ValidateHandler) clearCache(c echo.Context) error {
	if err := h.Cache.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear cache: "+err.Error())
	}
	h.Logger.Printf("extraction cache cleared by %v", c.Get("user_id"))
	return c.JSON(http.StatusOK, MessageResponse{Message: "cache cleared"})
}

func (h *ValidateHandler) recent(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit trail not configured")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	records, err := h.Store.RecentValidations(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if records == nil {
		records = []store.ValidationRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// readUpload reads the file and resolves its content type, sniffing the bytes
// when the declared header is missing or generic.
func readUpload(fh *multipart.FileHeader) (string, []byte, error) {
	f, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType, data, nil
}

func boolParam(c echo.Context, name string) bool {
	v := c.QueryParam(name)
	if v == "" {
		v = c.FormValue(name)
	}
	b, _ := strconv.ParseBool(v)
	return b
}
