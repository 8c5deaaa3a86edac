// Package handler exposes the pipeline over HTTP with gin.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"denoise-bench/internal/config"
	"denoise-bench/internal/logger"
	"denoise-bench/internal/models"
)

const component = "HTTPHandler"

// Pipeline is the part of the orchestrator served over HTTP
type Pipeline interface {
	Upload(ctx context.Context, filename string, raw []byte) (*models.UploadResult, error)
	Process(ctx context.Context, id string, spec models.NoiseSpec) (*models.ProcessResult, error)
	ChartSeries(ctx context.Context, id string) (*models.ChartSeries, error)
	WriteCSV(ctx context.Context, id string, w io.Writer) error
	ExportFilename(ctx context.Context, id string) (string, error)
	FilterNames() []string
}

type Handler struct {
	pipeline Pipeline
	upload   config.UploadConfig
	logger   logger.Logger
	now      func() time.Time
}

func NewHandler(p Pipeline, upload config.UploadConfig, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		pipeline: p,
		upload:   upload,
		logger:   log,
		now:      time.Now,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

type uploadResponse struct {
	Success bool `json:"success"`
	*models.UploadResult
}

type processResponse struct {
	Success bool `json:"success"`
	*models.ProcessResult
}

type chartsResponse struct {
	Success bool                `json:"success"`
	Charts  *models.ChartSeries `json:"charts"`
}

// processRequest accepts form or JSON bodies. Omitted noise parameters take
// their defaults.
type processRequest struct {
	SessionID     string   `form:"session_id" json:"session_id" binding:"required"`
	NoiseType     string   `form:"noise_type" json:"noise_type" binding:"required"`
	SaltProb      *float64 `form:"salt_prob" json:"salt_prob"`
	PepperProb    *float64 `form:"pepper_prob" json:"pepper_prob"`
	GaussianSigma *float64 `form:"gaussian_sigma" json:"gaussian_sigma"`
}

func (r processRequest) spec() (models.NoiseSpec, error) {
	switch models.NoiseKind(r.NoiseType) {
	case models.NoiseSaltPepper:
		return models.SaltPepper(
			valueOr(r.SaltProb, models.DefaultSaltProb),
			valueOr(r.PepperProb, models.DefaultPepperProb),
		), nil
	case models.NoiseGaussian:
		return models.Gaussian(valueOr(r.GaussianSigma, models.DefaultSigma)), nil
	default:
		return models.NoiseSpec{}, fmt.Errorf("%w: unknown noise type %q", models.ErrInvalidParameter, r.NoiseType)
	}
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// Upload accepts a multipart "file" field and opens a session for it
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.fail(c, fmt.Errorf("%w: missing file field: %v", models.ErrInvalidParameter, err))
		return
	}

	if file.Size > h.upload.MaxSize {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("file exceeds the %d MB limit", h.upload.MaxSize/(1024*1024)),
			Kind:  "InvalidParameter",
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.upload.MaxSize+1))
	if err != nil {
		h.fail(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	if int64(len(data)) > h.upload.MaxSize {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("file exceeds the %d MB limit", h.upload.MaxSize/(1024*1024)),
			Kind:  "InvalidParameter",
		})
		return
	}

	contentType := h.contentType(data, file.Header.Get("Content-Type"))
	if !slices.Contains(h.upload.AllowedTypes, contentType) {
		h.fail(c, fmt.Errorf("%w: unsupported content type %q", models.ErrDecode, contentType))
		return
	}

	res, err := h.pipeline.Upload(c.Request.Context(), file.Filename, data)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, uploadResponse{Success: true, UploadResult: res})
}

// contentType sniffs the payload, trusting the declared type only when the
// sniffer cannot tell
func (h *Handler) contentType(data []byte, declared string) string {
	sniffed := http.DetectContentType(data)
	if sniffed == "application/octet-stream" && declared != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	}
	return sniffed
}

// Process runs the noise model and the filter bank for a session
func (h *Handler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", models.ErrInvalidParameter, err))
		return
	}

	spec, err := req.spec()
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.pipeline.Process(c.Request.Context(), req.SessionID, spec)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, processResponse{Success: true, ProcessResult: res})
}

// Charts returns the MSE, PSNR and comparison series of the latest run
func (h *Handler) Charts(c *gin.Context) {
	series, err := h.pipeline.ChartSeries(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, chartsResponse{Success: true, Charts: series})
}

// Export streams the latest run as a CSV attachment named after the
// uploaded file
func (h *Handler) Export(c *gin.Context) {
	id := c.Param("session_id")

	var buf strings.Builder
	if err := h.pipeline.WriteCSV(c.Request.Context(), id, &buf); err != nil {
		h.fail(c, err)
		return
	}

	name, err := h.pipeline.ExportFilename(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(buf.String()))
}

// Filters lists the filter bank in canonical order
func (h *Handler) Filters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"filters": h.pipeline.FilterNames(),
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := models.ErrorKind(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error(component, err, map[string]interface{}{
			"path": c.FullPath(),
		})
	} else {
		h.logger.Debug(component, "request rejected", map[string]interface{}{
			"path":   c.FullPath(),
			"status": status,
			"kind":   kind,
			"error":  err.Error(),
		})
	}

	c.JSON(status, errorResponse{Error: err.Error(), Kind: kind})
}

// StatusFor maps an error kind onto an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrDecode), errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrImageTooSmall):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoResults):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
