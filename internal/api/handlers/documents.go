package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"learnhub/internal/db"
	"learnhub/internal/models"
)

// DocumentSearchRequest filters POST /documents/search and /documents/count.
type DocumentSearchRequest struct {
	UserID        *string `json:"user_id"`
	IsPublic      *bool   `json:"is_public"`
	MinDate       *string `json:"min_date"`
	MaxDate       *string `json:"max_date"`
	Filename      *string `json:"filename"`
	FileExtension *string `json:"file_extension"`
	Size          *int    `json:"size"`
	Start         *int    `json:"start"`
}

func (r DocumentSearchRequest) filter() (db.DocumentFilter, error) {
	f := db.DocumentFilter{UserID: r.UserID, IsPublic: r.IsPublic, Filename: r.Filename}
	if r.FileExtension != nil && *r.FileExtension != "" {
		ext := strings.ToLower(*r.FileExtension)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.Extension = &ext
	}
	var err error
	if f.MinDate, err = parseDate(r.MinDate, false); err != nil {
		return f, err
	}
	if f.MaxDate, err = parseDate(r.MaxDate, true); err != nil {
		return f, err
	}
	return f, nil
}

// HandleUploadDocument stores a document and records it against the storage quota.
func (h *Handler) HandleUploadDocument(c *gin.Context) {
	filename, data, err := h.readUpload(c)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid upload", err)
		return
	}
	isPublic, err := boolField(c, "is_public")
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid is_public", err)
		return
	}
	userID := field(c, "user_id")
	if userID == "" {
		h.respondError(c, http.StatusBadRequest, "Invalid upload", fmt.Errorf("user_id is required"))
		return
	}
	doc, err := h.library.Upload(c.Request.Context(), userID, isPublic, filename, data)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to upload %s", filename), err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) HandleGetDocument(c *gin.Context) {
	docID, ok := h.parseUUID(c, "id")
	if !ok {
		return
	}
	doc, err := h.store.GetDocument(c.Request.Context(), docID)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to get document %s", docID), err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// HandleSearchDocuments lists documents matching the filters, newest first.
func (h *Handler) HandleSearchDocuments(c *gin.Context) {
	var req DocumentSearchRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	f, err := req.filter()
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	p, err := page(req.Size, req.Start)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid paging", err)
		return
	}

	ctx := c.Request.Context()
	docs, err := h.store.SearchDocuments(ctx, f, p)
	if err != nil {
		h.fail(c, "Failed to search documents", err)
		return
	}
	total, err := h.store.CountDocuments(ctx, f)
	if err != nil {
		h.fail(c, "Failed to count documents", err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": docs, "total": total})
}

func (h *Handler) HandleCountDocuments(c *gin.Context) {
	var req DocumentSearchRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	f, err := req.filter()
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	total, err := h.store.CountDocuments(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "Failed to count documents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total})
}
