package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SetConstantRequest is the body of POST /constants.
type SetConstantRequest struct {
	Key   string `json:"key" binding:"required"`
	Value *int64 `json:"value" binding:"required"`
}

// HandleTaskStatus reports the state of a background task.
func (h *Handler) HandleTaskStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.tasks.Store().Get(c.Param("taskId")))
}

// HandleGetQuota returns the usage counters of a user, creating them on first use.
func (h *Handler) HandleGetQuota(c *gin.Context) {
	userID := c.Param("userId")
	quota, err := h.store.GetOrCreateQuota(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to get quota of user %s", userID), err)
		return
	}
	c.JSON(http.StatusOK, quota)
}

func (h *Handler) HandleListConstants(c *gin.Context) {
	constants, err := h.store.ListConstants(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list constants", err)
		return
	}
	c.JSON(http.StatusOK, constants)
}

func (h *Handler) HandleSetConstant(c *gin.Context) {
	var req SetConstantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	key := strings.ToUpper(strings.TrimSpace(req.Key))
	if key == "" {
		h.respondError(c, http.StatusBadRequest, "Invalid constant", errors.New("key is required"))
		return
	}
	if *req.Value < 0 {
		h.respondError(c, http.StatusBadRequest, "Invalid constant", fmt.Errorf("%s must not be negative", key))
		return
	}
	if err := h.store.SetConstant(c.Request.Context(), key, *req.Value); err != nil {
		h.fail(c, fmt.Sprintf("Failed to set constant %s", key), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": *req.Value})
}

func (h *Handler) HandleListCategories(c *gin.Context) {
	categories, err := h.store.ListCategories(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list categories", err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// HandleHealth reports database reachability, the LLM provider and the
// number of indexed passages.
func (h *Handler) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	database := "ok"
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("Health check failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
		database = err.Error()
	}
	body := gin.H{
		"status":       status,
		"database":     database,
		"llm_provider": h.provider,
	}
	if h.retriever != nil {
		body["vector_store"] = gin.H{"passages": h.retriever.Count()}
	} else {
		body["vector_store"] = nil
	}
	c.JSON(code, body)
}
