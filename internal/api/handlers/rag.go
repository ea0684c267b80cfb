package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"learnhub/internal/pipeline"
	"learnhub/internal/tasks"
)

// HandleAddDocument queues extraction, upload and indexing of a document.
func (h *Handler) HandleAddDocument(c *gin.Context) {
	if h.retriever == nil {
		h.respondError(c, http.StatusServiceUnavailable, "Document index unavailable", pipeline.ErrIndexUnavailable)
		return
	}
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
		h.respondError(c, http.StatusBadRequest, "Invalid upload", errors.New("user_id is required"))
		return
	}

	h.submit(c, "rag_add", func(ctx context.Context, progress tasks.Progress) (any, error) {
		return h.library.Index(ctx, userID, isPublic, filename, data, progress)
	})
}

// HandleQueryDocuments queues a question answered from the user's indexed
// documents and the public ones.
func (h *Handler) HandleQueryDocuments(c *gin.Context) {
	if h.retriever == nil {
		h.respondError(c, http.StatusServiceUnavailable, "Document index unavailable", pipeline.ErrIndexUnavailable)
		return
	}
	userID := field(c, "user_id")
	query := strings.TrimSpace(field(c, "query_text"))
	if query == "" {
		h.respondError(c, http.StatusBadRequest, "Invalid query", errors.New("query_text is required"))
		return
	}

	h.submit(c, "rag_query", func(ctx context.Context, progress tasks.Progress) (any, error) {
		progress("retrieving")
		return h.retriever.Query(ctx, userID, query)
	})
}
