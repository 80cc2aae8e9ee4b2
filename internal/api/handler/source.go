package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/quizgen/internal/domain"
	"github.com/timmy/quizgen/internal/logger"
	"github.com/timmy/quizgen/internal/repository"
	"github.com/timmy/quizgen/internal/service"
	"github.com/timmy/quizgen/internal/storage"
)

const sourceContentType = "text/plain; charset=utf-8"

// SourceHandler accepts study material that generation jobs can reference
// by storage key.
type SourceHandler struct {
	storage  storage.ObjectStorage
	docs     *repository.SourceDocumentRepository
	maxBytes int64
}

// NewSourceHandler creates a new source handler. objectStorage may be nil,
// in which case uploads answer 503.
func NewSourceHandler(objectStorage storage.ObjectStorage, docs *repository.SourceDocumentRepository, maxBytes int64) *SourceHandler {
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &SourceHandler{storage: objectStorage, docs: docs, maxBytes: maxBytes}
}

// Upload handles POST /api/v1/admin/generation/sources with a multipart
// "file" field holding UTF-8 text.
func (h *SourceHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	if h.storage == nil {
		respondError(c, service.ErrStorageUnavailable)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Multipart field 'file' is required")
		return
	}
	if header.Size > h.maxBytes {
		badRequest(c, fmt.Sprintf("File exceeds the %d byte limit", h.maxBytes))
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		respondError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	if int64(len(data)) > h.maxBytes {
		badRequest(c, fmt.Sprintf("File exceeds the %d byte limit", h.maxBytes))
		return
	}
	if len(bytes.TrimSpace(data)) == 0 || !utf8.Valid(data) {
		badRequest(c, "File must contain UTF-8 text")
		return
	}

	key := "sources/" + uuid.New().String() + ".txt"
	if err := h.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), sourceContentType); err != nil {
		respondError(c, fmt.Errorf("failed to store upload: %w", err))
		return
	}

	doc := &domain.SourceDocument{
		ID:          uuid.New().String(),
		StorageKey:  key,
		FileName:    strings.TrimSpace(filepath.Base(header.Filename)),
		ContentType: sourceContentType,
		Size:        int64(len(data)),
		UploadedBy:  c.GetHeader(headerAdminID),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.docs.Create(ctx, doc); err != nil {
		if delErr := h.storage.Delete(ctx, key); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).Warn("Failed to remove orphaned upload")
		}
		respondError(c, fmt.Errorf("failed to record upload: %w", err))
		return
	}

	logger.With(logger.Fields{
		"storage_key": key,
		"size":        doc.Size,
	}).Info(ctx, "Source material uploaded: file=%s", doc.FileName)

	c.JSON(http.StatusOK, doc)
}
