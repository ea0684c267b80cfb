package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"learnhub/internal/db"
	"learnhub/internal/models"
	"learnhub/internal/pipeline"
	"learnhub/internal/tasks"
)

// defaultQuestionCount applies when a request leaves count empty.
const defaultQuestionCount = 10

// GenerateTextRequest is the body of POST /generate/text.
type GenerateTextRequest struct {
	Text       string `json:"text" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
	IsPublic   bool   `json:"is_public"`
	Count      int    `json:"count"`
	Lang       string `json:"lang"`
	Difficulty string `json:"difficulty"`
}

// GenerateLinkRequest is the body of POST /generate/link.
type GenerateLinkRequest struct {
	Link       string `json:"link" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
	IsPublic   bool   `json:"is_public"`
	Count      int    `json:"count"`
	Lang       string `json:"lang"`
	Difficulty string `json:"difficulty"`
}

// UpdateQuizRequest replaces the editable fields of a quiz.
type UpdateQuizRequest struct {
	Title      string            `json:"title" binding:"required"`
	IsPublic   bool              `json:"is_public"`
	Difficulty string            `json:"difficulty"`
	Categories []string          `json:"categories"`
	Questions  []models.Question `json:"questions" binding:"required"`
}

// QuizSearchRequest filters POST /quizzes/search and /quizzes/count.
// Dates are dd/mm/yyyy; max dates include the whole day.
type QuizSearchRequest struct {
	UserID          *string  `json:"user_id"`
	IsPublic        *bool    `json:"is_public"`
	MinCreatedDate  *string  `json:"min_created_date"`
	MaxCreatedDate  *string  `json:"max_created_date"`
	MinLastModified *string  `json:"min_last_modified"`
	MaxLastModified *string  `json:"max_last_modified"`
	Difficulty      *string  `json:"difficulty"`
	Categories      []string `json:"categories"`
	Title           *string  `json:"title"`
	Size            *int     `json:"size"`
	Start           *int     `json:"start"`
}

func (r QuizSearchRequest) filter() (db.QuizFilter, error) {
	f := db.QuizFilter{
		UserID:     r.UserID,
		IsPublic:   r.IsPublic,
		Categories: r.Categories,
		Title:      r.Title,
	}
	if r.Difficulty != nil && *r.Difficulty != "" {
		d, err := models.ParseDifficulty(*r.Difficulty)
		if err != nil {
			return f, err
		}
		s := string(d)
		f.Difficulty = &s
	}
	var err error
	if f.MinCreated, err = parseDate(r.MinCreatedDate, false); err != nil {
		return f, err
	}
	if f.MaxCreated, err = parseDate(r.MaxCreatedDate, true); err != nil {
		return f, err
	}
	if f.MinLastModified, err = parseDate(r.MinLastModified, false); err != nil {
		return f, err
	}
	if f.MaxLastModified, err = parseDate(r.MaxLastModified, true); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) generationOptions(userID string, isPublic bool, count int, lang, difficulty, mode string) (pipeline.Options, error) {
	opts := pipeline.Options{UserID: userID, IsPublic: isPublic, Count: count, Language: strings.TrimSpace(lang)}
	if opts.UserID == "" {
		return opts, errors.New("user_id is required")
	}
	if opts.Count == 0 {
		opts.Count = defaultQuestionCount
	}
	if opts.Count < 0 {
		return opts, fmt.Errorf("count must be positive, got %d", count)
	}
	if opts.Count > h.maxQuestions {
		return opts, fmt.Errorf("count must be at most %d, got %d", h.maxQuestions, count)
	}
	d, err := models.ParseDifficulty(difficulty)
	if err != nil {
		return opts, err
	}
	opts.Difficulty = d
	if opts.PDFMode, err = pipeline.ParsePDFMode(mode); err != nil {
		return opts, err
	}
	return opts, nil
}

// HandleGenerate queues quiz generation from an uploaded file.
func (h *Handler) HandleGenerate(c *gin.Context) {
	filename, data, err := h.readUpload(c)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid upload", err)
		return
	}
	count := 0
	if v := field(c, "count"); v != "" {
		if count, err = strconv.Atoi(v); err != nil {
			h.respondError(c, http.StatusBadRequest, "Invalid count", err)
			return
		}
	}
	isPublic, err := boolField(c, "is_public")
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid is_public", err)
		return
	}
	opts, err := h.generationOptions(field(c, "user_id"), isPublic, count, field(c, "lang"), field(c, "difficulty"), field(c, "mode"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid generation request", err)
		return
	}

	h.submit(c, "generate_file", func(ctx context.Context, progress tasks.Progress) (any, error) {
		return h.generator.FromFile(ctx, opts, filename, data, progress)
	})
}

// HandleGenerateFromText queues quiz generation from raw text.
func (h *Handler) HandleGenerateFromText(c *gin.Context) {
	var req GenerateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	opts, err := h.generationOptions(req.UserID, req.IsPublic, req.Count, req.Lang, req.Difficulty, "")
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid generation request", err)
		return
	}

	h.submit(c, "generate_text", func(ctx context.Context, progress tasks.Progress) (any, error) {
		return h.generator.FromText(ctx, opts, req.Text, progress)
	})
}

// HandleGenerateFromLink queues quiz generation from a YouTube video or web page.
func (h *Handler) HandleGenerateFromLink(c *gin.Context) {
	var req GenerateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !strings.HasPrefix(req.Link, "http://") && !strings.HasPrefix(req.Link, "https://") {
		h.respondError(c, http.StatusBadRequest, "Invalid link", fmt.Errorf("%q is not an http(s) URL", req.Link))
		return
	}
	opts, err := h.generationOptions(req.UserID, req.IsPublic, req.Count, req.Lang, req.Difficulty, "")
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid generation request", err)
		return
	}

	h.submit(c, "generate_link", func(ctx context.Context, progress tasks.Progress) (any, error) {
		return h.generator.FromLink(ctx, opts, req.Link, progress)
	})
}

// HandleGetQuiz retrieves a specific quiz by its ID
func (h *Handler) HandleGetQuiz(c *gin.Context) {
	quizID, ok := h.parseUUID(c, "id")
	if !ok {
		return
	}
	quiz, err := h.store.GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to get quiz %s", quizID), err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

// HandleUpdateQuiz replaces a quiz and rescores its results.
func (h *Handler) HandleUpdateQuiz(c *gin.Context) {
	quizID, ok := h.parseUUID(c, "id")
	if !ok {
		return
	}
	var req UpdateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	difficulty, err := models.ParseDifficulty(req.Difficulty)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid difficulty", err)
		return
	}
	if len(req.Questions) == 0 {
		h.respondError(c, http.StatusBadRequest, "Invalid questions", errors.New("a quiz needs at least one question"))
		return
	}
	for i, q := range req.Questions {
		if err := q.Validate(); err != nil {
			h.respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid question %d", i), err)
			return
		}
	}
	if req.Categories == nil {
		req.Categories = []string{}
	}

	quiz, err := h.store.UpdateQuizAndResults(c.Request.Context(), db.UpdateQuizParams{
		ID:         quizID,
		Title:      req.Title,
		IsPublic:   req.IsPublic,
		Difficulty: difficulty,
		Categories: req.Categories,
		Questions:  req.Questions,
	})
	if err != nil {
		h.fail(c, fmt.Sprintf("Failed to update quiz %s", quizID), err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

// HandleDeleteQuiz deletes a quiz and releases its quota slot.
func (h *Handler) HandleDeleteQuiz(c *gin.Context) {
	quizID, ok := h.parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.store.RemoveQuiz(c.Request.Context(), quizID); err != nil {
		h.fail(c, fmt.Sprintf("Failed to delete quiz %s", quizID), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Quiz deleted successfully"})
}

// HandleSearchQuizzes lists quizzes matching the filters, newest first.
func (h *Handler) HandleSearchQuizzes(c *gin.Context) {
	var req QuizSearchRequest
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
	quizzes, err := h.store.SearchQuizzes(ctx, f, p)
	if err != nil {
		h.fail(c, "Failed to search quizzes", err)
		return
	}
	total, err := h.store.CountQuizzes(ctx, f)
	if err != nil {
		h.fail(c, "Failed to count quizzes", err)
		return
	}
	if quizzes == nil {
		quizzes = []models.Quiz{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": quizzes, "total": total})
}

// HandleCountQuizzes counts quizzes matching the filters.
func (h *Handler) HandleCountQuizzes(c *gin.Context) {
	var req QuizSearchRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	f, err := req.filter()
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	total, err := h.store.CountQuizzes(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "Failed to count quizzes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": total})
}
