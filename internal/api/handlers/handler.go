package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"learnhub/internal/db"
	"learnhub/internal/extract"
	"learnhub/internal/logger"
	"learnhub/internal/models"
	"learnhub/internal/pipeline"
	"learnhub/internal/rag"
	"learnhub/internal/tasks"
)

// Store is the database surface the handlers use. *db.DB satisfies it.
type Store interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	UpdateQuizAndResults(ctx context.Context, arg db.UpdateQuizParams) (*models.Quiz, error)
	RemoveQuiz(ctx context.Context, id uuid.UUID) error
	SearchQuizzes(ctx context.Context, f db.QuizFilter, p db.Page) ([]models.Quiz, error)
	CountQuizzes(ctx context.Context, f db.QuizFilter) (int64, error)

	CreateResult(ctx context.Context, quizID uuid.UUID, userID string) (*models.Result, error)
	GetResult(ctx context.Context, id uuid.UUID) (*models.Result, error)
	AnswerQuestion(ctx context.Context, resultID uuid.UUID, index, answer int) (*models.Result, error)
	DeleteResult(ctx context.Context, id uuid.UUID) error
	ListResultsByQuiz(ctx context.Context, quizID uuid.UUID, p db.Page, s db.ResultSort) ([]models.Result, error)
	ListResultsByUser(ctx context.Context, userID string, p db.Page, s db.ResultSort) ([]models.Result, error)

	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	SearchDocuments(ctx context.Context, f db.DocumentFilter, p db.Page) ([]models.Document, error)
	CountDocuments(ctx context.Context, f db.DocumentFilter) (int64, error)

	GetOrCreateQuota(ctx context.Context, userID string) (*models.Quota, error)
	ListConstants(ctx context.Context) (map[string]int64, error)
	SetConstant(ctx context.Context, key string, value int64) error
	ListCategories(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Generator runs generation tasks. *pipeline.Pipeline satisfies it.
type Generator interface {
	FromText(ctx context.Context, opts pipeline.Options, text string, progress func(string)) (*pipeline.Outcome, error)
	FromLink(ctx context.Context, opts pipeline.Options, link string, progress func(string)) (*pipeline.Outcome, error)
	FromFile(ctx context.Context, opts pipeline.Options, filename string, data []byte, progress func(string)) (*pipeline.Outcome, error)
}

// Library stores and indexes documents. *pipeline.Library satisfies it.
type Library interface {
	Upload(ctx context.Context, userID string, isPublic bool, filename string, data []byte) (*models.Document, error)
	Index(ctx context.Context, userID string, isPublic bool, filename string, data []byte, progress func(string)) (*pipeline.IndexOutcome, error)
}

// Retriever answers questions from indexed documents. *rag.Store satisfies it.
type Retriever interface {
	Query(ctx context.Context, userID, query string) (*rag.Answer, error)
	Count() int
}

// TaskRunner runs work in the background. *tasks.Runner satisfies it.
type TaskRunner interface {
	Submit(kind string, fn tasks.Func) string
	Store() *tasks.Store
}

// Deps are the collaborators of the handlers. Retriever may be nil.
type Deps struct {
	Store          Store
	Generator      Generator
	Library        Library
	Retriever      Retriever
	Tasks          TaskRunner
	Provider       string
	MaxUploadBytes int64
	// MaxQuestions caps the count of a generation request.
	MaxQuestions int
	Log          *logger.Logger
}

// Handler contains the API handlers dependencies
type Handler struct {
	store          Store
	generator      Generator
	library        Library
	retriever      Retriever
	tasks          TaskRunner
	provider       string
	maxUploadBytes int64
	maxQuestions   int
	log            *logger.Logger
}

// NewHandler creates a new Handler
func NewHandler(d Deps) *Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 64 << 20
	}
	if d.MaxQuestions <= 0 || d.MaxQuestions > models.MaxQuestionCount {
		d.MaxQuestions = models.MaxQuestionCount
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Handler{
		store:          d.Store,
		generator:      d.Generator,
		library:        d.Library,
		retriever:      d.Retriever,
		tasks:          d.Tasks,
		provider:       d.Provider,
		maxUploadBytes: d.MaxUploadBytes,
		maxQuestions:   d.MaxQuestions,
		log:            d.Log,
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		exceeded    *db.QuotaExceededError
		outOfRange  *db.AnswerOutOfRangeError
		unsupported *extract.UnsupportedTypeError
		limit       *extract.LimitError
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &exceeded):
		return http.StatusForbidden
	case errors.As(err, &outOfRange):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &limit):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError logs an error and aborts the request with a JSON body.
func (h *Handler) respondError(c *gin.Context, statusCode int, errorContext string, err error) {
	if statusCode >= http.StatusInternalServerError {
		h.log.Error(errorContext, "error", err, "path", c.Request.URL.Path, "status", statusCode)
	} else {
		h.log.Warn(errorContext, "error", err, "path", c.Request.URL.Path, "status", statusCode)
	}
	c.AbortWithStatusJSON(statusCode, models.ErrorResponse{Error: fmt.Sprintf("%s: %v", errorContext, err)})
}

// fail responds with the status statusFor picks for err.
func (h *Handler) fail(c *gin.Context, errorContext string, err error) {
	h.respondError(c, statusFor(err), errorContext, err)
}

// submit queues fn and answers with the task ID.
func (h *Handler) submit(c *gin.Context, kind string, fn tasks.Func) {
	id := h.tasks.Submit(kind, fn)
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": "processing"})
}

func (h *Handler) parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s format '%s'", param, raw), err)
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON binds a JSON body that may be absent.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// field reads a multipart form value, falling back to the query string.
func field(c *gin.Context, name string) string {
	if v, ok := c.GetPostForm(name); ok {
		return v
	}
	return c.Query(name)
}

func boolField(c *gin.Context, name string) (bool, error) {
	v := field(c, name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return b, nil
}

// readUpload reads the multipart file named "file" up to the upload limit.
func (h *Handler) readUpload(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("missing file: %w", err)
	}
	data, err := readFileHeader(header)
	if err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("file %s is empty", header.Filename)
	}
	return header.Filename, data, nil
}

func readFileHeader(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file %s: %w", header.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file %s: %w", header.Filename, err)
	}
	return data, nil
}

// dateLayout is the dd/mm/yyyy format of search filters.
const dateLayout = "02/01/2006"

// parseDate parses an optional dd/mm/yyyy date. endOfDay moves it to
// 23:59:59 for inclusive upper bounds.
func parseDate(s *string, endOfDay bool) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, fmt.Errorf("date %q must be in dd/mm/yyyy format", *s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func page(size, start *int) (db.Page, error) {
	var p db.Page
	if size != nil {
		if *size < 0 {
			return p, errors.New("size must not be negative")
		}
		p.Size = *size
	}
	if start != nil {
		if *start < 0 {
			return p, errors.New("start must not be negative")
		}
		p.Start = *start
	}
	return p, nil
}
