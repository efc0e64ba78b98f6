package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/bulk-tickets/internal/bulk"
	"github.com/yourorg/bulk-tickets/internal/render"
	"github.com/yourorg/bulk-tickets/internal/sheet"
	"github.com/yourorg/bulk-tickets/internal/types"
)

// Runner executes one batch.
type Runner interface {
	Run(ctx context.Context, req types.BatchRequest) (*types.BatchReport, error)
}

type UploadHandler struct {
	runner   Runner
	archiver *Archiver
	logger   *zap.Logger
}

func NewUploadHandler(runner Runner, archiver *Archiver, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{runner: runner, archiver: archiver, logger: logger}
}

type SendBulkRequest struct {
	SubjectTemplate string `form:"subject_template" binding:"required"`
	BodyTemplate    string `form:"body_template" binding:"required"`
	EmailColumn     string `form:"email_column"`
	Disposition     string `form:"disposition"`
	CustomFields    string `form:"custom_fields"`
}

// SendBulk accepts a CSV/XLSX/XLS file, renders the templates per row and
// creates one ticket per recipient.
func (h *UploadHandler) SendBulk(c *gin.Context) {
	var req SendBulkRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds the size limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload error: " + err.Error()})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload error: " + err.Error()})
		return
	}

	batch := types.BatchRequest{
		File:            content,
		Filename:        header.Filename,
		SubjectTemplate: req.SubjectTemplate,
		BodyTemplate:    req.BodyTemplate,
		EmailColumn:     req.EmailColumn,
		Disposition:     req.Disposition,
		ExtraFieldsJSON: req.CustomFields,
	}
	report, err := h.runner.Run(c.Request.Context(), batch)
	if err != nil {
		status, body := batchError(err)
		h.logger.Warn("send-bulk request rejected", zap.String("filename", header.Filename), zap.Int("status", status), zap.Error(err))
		c.JSON(status, body)
		return
	}

	if h.archiver != nil {
		h.archiver.Archive(context.WithoutCancel(c.Request.Context()), batch, report)
	}
	c.JSON(http.StatusOK, report)
}

// batchError maps a batch-fatal error to a status code and response body.
func batchError(err error) (int, gin.H) {
	var missing *bulk.ColumnNotFoundError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, gin.H{
			"error":             "Email column '" + missing.Column + "' not found.",
			"available_columns": missing.Available,
		}
	case errors.Is(err, bulk.ErrInvalidAPIKey):
		return http.StatusServiceUnavailable, gin.H{"error": err.Error()}
	case errors.Is(err, sheet.ErrUnsupportedFormat):
		return http.StatusBadRequest, gin.H{"error": "Unsupported file type. Please upload .csv, .xlsx or .xls."}
	case errors.Is(err, sheet.ErrMalformedInput), errors.Is(err, render.ErrMalformedTemplate):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": "processing error: " + err.Error()}
	}
}
