package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"learnhub/internal/db"
	"learnhub/internal/models"
)

// AnswerRequest records the answer to one question of a result.
type AnswerRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required"`
	Answer        *int `json:"answer" binding:"required"`
}

// HandleCreateResult starts (or returns the existing) result of a user on a quiz.
func (h *Handler) HandleCreateResult(c *gin.Context) {
	quizID, ok := h.parseUUID(c, "quizId")
	if !ok {
		return
	}
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		h.respondError(c, http.StatusBadRequest, "Invalid user", fmt.Errorf("user_id is required"))
		return
	}
	result, err := h.store.CreateResult(c.Request.Context(), quizID, userID)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to create result for quiz %s", quizID), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleAnswerQuestion stores one answer and updates the result counters.
func (h *Handler) HandleAnswerQuestion(c *gin.Context) {
	resultID, ok := h.parseUUID(c, "id")
	if !ok {
		return
	}
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	result, err := h.store.AnswerQuestion(c.Request.Context(), resultID, *req.QuestionIndex, *req.Answer)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to answer question %d of result %s", *req.QuestionIndex, resultID), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) HandleGetResult(c *gin.Context) {
	resultID, ok := h.parseUUID(c, "id")
	if !ok {
		return
	}
	result, err := h.store.GetResult(c.Request.Context(), resultID)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to get result %s", resultID), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) HandleDeleteResult(c *gin.Context) {
	resultID, ok := h.parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteResult(c.Request.Context(), resultID); err != nil {
		h.fail(c, fmt.Sprintf("Failed to delete result %s", resultID), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Result deleted successfully"})
}

// HandleListQuizResults lists the results of a quiz.
func (h *Handler) HandleListQuizResults(c *gin.Context) {
	quizID, ok := h.parseUUID(c, "quizId")
	if !ok {
		return
	}
	p, s, ok := h.listParams(c)
	if !ok {
		return
	}
	results, err := h.store.ListResultsByQuiz(c.Request.Context(), quizID, p, s)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to list results of quiz %s", quizID), err)
		return
	}
	respondResults(c, results)
}

// HandleListUserResults lists the results of a user.
func (h *Handler) HandleListUserResults(c *gin.Context) {
	userID := c.Param("userId")
	p, s, ok := h.listParams(c)
	if !ok {
		return
	}
	results, err := h.store.ListResultsByUser(c.Request.Context(), userID, p, s)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to list results of user %s", userID), err)
		return
	}
	respondResults(c, results)
}

func respondResults(c *gin.Context, results []models.Result) {
	if results == nil {
		results = []models.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"data": results, "total": len(results)})
}

// listParams reads size, start, sort_by and order from the query string.
func (h *Handler) listParams(c *gin.Context) (db.Page, db.ResultSort, bool) {
	var size, start *int
	for name, dst := range map[string]**int{"size": &size, "start": &start} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			h.respondError(c, http.StatusBadRequest, "Invalid "+name, err)
			return db.Page{}, db.ResultSort{}, false
		}
		*dst = &n
	}
	p, err := page(size, start)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid paging", err)
		return db.Page{}, db.ResultSort{}, false
	}

	s := db.ResultSort{Column: c.Query("sort_by")}
	if !db.ValidResultSort(s.Column) {
		h.respondError(c, http.StatusBadRequest, "Invalid sort_by", fmt.Errorf("cannot sort results by %q", s.Column))
		return db.Page{}, db.ResultSort{}, false
	}
	switch strings.ToLower(c.DefaultQuery("order", "asc")) {
	case "asc":
	case "desc":
		s.Desc = true
	default:
		h.respondError(c, http.StatusBadRequest, "Invalid order", fmt.Errorf("order must be asc or desc"))
		return db.Page{}, db.ResultSort{}, false
	}
	return p, s, true
}
