package httpserver

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/example/file-ingestion/modules/ingest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers contains HTTP request handlers for file operations.
type Handlers struct {
	service    *ingest.Service
	background *ingest.Background
	checks     []HealthChecker
}

// NewHandlers creates a new handlers instance. background may be nil.
func NewHandlers(service *ingest.Service, background *ingest.Background, checks []HealthChecker) *Handlers {
	return &Handlers{service: service, background: background, checks: checks}
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

type deleteRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// handleServiceError writes an appropriate HTTP error response for pipeline errors.
func handleServiceError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
	case domain.ValidationError.Has(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   fmt.Sprintf("Failed to %s", operation),
			"details": err.Error(),
		})
	}
}

// handleBodyError writes 413 for an oversized body and 400 for anything else.
func handleBodyError(c *gin.Context, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "details": err.Error()})
}

// batchStatus maps a batch outcome to a status code.
func batchStatus(r domain.BatchResult, success, precondition int) int {
	switch r.Outcome {
	case domain.AllSucceeded:
		return success
	case domain.PartialSuccess:
		return http.StatusMultiStatus
	case domain.AllFailed:
		return http.StatusUnprocessableEntity
	default:
		return precondition
	}
}

// formItems opens the uploaded parts of field. The returned cleanup closes them.
func formItems(c *gin.Context, fields ...string) ([]domain.Item, func(), bool) {
	form, err := c.MultipartForm()
	if err != nil {
		handleBodyError(c, err, "Invalid multipart form")
		return nil, nil, false
	}

	var headers []*multipart.FileHeader
	for _, field := range fields {
		headers = append(headers, form.File[field]...)
	}
	if len(headers) == 0 {
		_ = form.RemoveAll()
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return nil, nil, false
	}

	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = form.RemoveAll()
	}

	items := make([]domain.Item, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			cleanup()
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   fmt.Sprintf("Failed to open %s", header.Filename),
				"details": err.Error(),
			})
			return nil, nil, false
		}
		opened = append(opened, f)
		items = append(items, domain.Item{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Content:     f,
		})
	}
	return items, cleanup, true
}

// UploadFiles handles batch uploads (POST /api/v1/files).
func (h *Handlers) UploadFiles(c *gin.Context) {
	items, cleanup, ok := formItems(c, "files", "file")
	if !ok {
		return
	}
	defer cleanup()

	result := h.service.Upload(c.Request.Context(), items)
	c.JSON(batchStatus(result.BatchResult, http.StatusCreated, http.StatusBadRequest), result)
}

// SubmitUpload queues a batch for background upload (POST /api/v1/files/async).
func (h *Handlers) SubmitUpload(c *gin.Context) {
	if h.background == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Background uploads are disabled"})
		return
	}

	items, cleanup, ok := formItems(c, "files", "file")
	if !ok {
		return
	}
	defer cleanup()

	ticket, err := h.background.Submit(items)
	if err != nil {
		if errors.Is(err, ingest.ErrQueueFull) || errors.Is(err, ingest.ErrPoolStopped) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		handleBodyError(c, err, "Failed to read upload")
		return
	}

	c.Header("Location", "/api/v1/files/async/"+ticket.ID.String())
	c.JSON(http.StatusAccepted, ticket)
}

// GetTicket reports the state of a background upload (GET /api/v1/files/async/:ticket).
func (h *Handlers) GetTicket(c *gin.Context) {
	if h.background == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Background uploads are disabled"})
		return
	}

	id, err := uuid.Parse(c.Param("ticket"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket ID format"})
		return
	}

	ticket, err := h.background.Ticket(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// ListFiles handles filtered listings (GET /api/v1/files).
func (h *Handlers) ListFiles(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.service.ListFiles(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err, "list files")
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": records, "count": len(records)})
}

// ListByDateRange handles date range listings (GET /api/v1/files/range).
func (h *Handlers) ListByDateRange(c *gin.Context) {
	filter, err := rangeFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.service.ListFiles(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err, "list files")
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": records, "count": len(records)})
}

// DownloadFile handles file download requests (GET /api/v1/files/:id).
func (h *Handlers) DownloadFile(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	dl, err := h.service.DownloadByID(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err, "download file")
		return
	}

	// Set response headers with sanitized filename
	safeFilename := strings.ReplaceAll(dl.Record.Name, "\"", "")
	safeFilename = strings.ReplaceAll(safeFilename, "\n", "")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", safeFilename))
	c.Header("X-File-ID", strconv.FormatUint(uint64(dl.Record.ID), 10))
	c.Data(http.StatusOK, dl.ContentType, dl.Data)
}

// DownloadByFilter returns every file matching the query filter (GET /api/v1/files/download).
func (h *Handlers) DownloadByFilter(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := h.service.DownloadByFilter(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err, "download files")
		return
	}
	c.JSON(batchStatus(batch.BatchResult, http.StatusOK, http.StatusNotFound), batch)
}

// UpdateFile replaces the content of a file (PUT /api/v1/files/:id).
func (h *Handlers) UpdateFile(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	items, cleanup, ok := formItems(c, "file")
	if !ok {
		return
	}
	defer cleanup()
	if len(items) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Exactly one file is required"})
		return
	}

	rec, err := h.service.UpdateByID(c.Request.Context(), id, items[0])
	if err != nil {
		handleServiceError(c, err, "update file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": rec})
}

// RenameFile changes the display name of a file (PATCH /api/v1/files/:id/name).
func (h *Handlers) RenameFile(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBodyError(c, err, "Invalid request body")
		return
	}

	rec, err := h.service.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		handleServiceError(c, err, "rename file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": rec})
}

// DeleteFiles removes a batch of files (DELETE /api/v1/files).
func (h *Handlers) DeleteFiles(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBodyError(c, err, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No ids provided"})
		return
	}

	result := h.service.DeleteBatch(c.Request.Context(), req.IDs)
	c.JSON(batchStatus(result.BatchResult, http.StatusOK, http.StatusNotFound), result)
}

// HealthCheck handles health check requests (GET /health).
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy := true
	modules := make(map[string]any, len(h.checks))
	for _, check := range h.checks {
		status := check.Health(c.Request.Context())
		healthy = healthy && status.Healthy
		modules[check.Name()] = status
	}

	code, state := http.StatusOK, "healthy"
	if !healthy {
		code, state = http.StatusServiceUnavailable, "unhealthy"
	}
	c.JSON(code, gin.H{
		"status":  state,
		"service": "file-ingestion",
		"modules": modules,
	})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file ID format"})
		return 0, false
	}
	return uint(id), true
}

// filterFromQuery reads filterOn/filterQuery, or the first of name, type, key and maxSize.
func filterFromQuery(c *gin.Context) (domain.Filter, error) {
	if field, ok := c.GetQuery("filterOn"); ok {
		return domain.ParseFilter(field, c.Query("filterQuery"))
	}
	if v, ok := c.GetQuery("name"); ok {
		return domain.NameContains(v), nil
	}
	if v, ok := c.GetQuery("type"); ok {
		return domain.TypeContains(v), nil
	}
	if v, ok := c.GetQuery("key"); ok {
		return domain.KeyContains(v), nil
	}
	if v, ok := c.GetQuery("maxSize"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return domain.Filter{}, fmt.Errorf("invalid maxSize %q", v)
		}
		return domain.SizeAtMost(n), nil
	}
	return domain.NoFilter(), nil
}

func rangeFromQuery(c *gin.Context) (domain.Filter, error) {
	start, err := parseTimeParam(c, "start", false)
	if err != nil {
		return domain.Filter{}, err
	}
	end, err := parseTimeParam(c, "end", true)
	if err != nil {
		return domain.Filter{}, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return domain.Filter{}, fmt.Errorf("end is before start")
	}
	return domain.UploadedBetween(start, end), nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates, read as UTC.
// A plain date covers the whole day when endOfDay is set.
func parseTimeParam(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("invalid %s %q: want RFC 3339 or YYYY-MM-DD", name, v)
}
