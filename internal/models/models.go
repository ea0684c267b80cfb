package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OptionCount is the number of answer options every question must carry.
const OptionCount = 4

// Difficulty is the requested difficulty level of a generated quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes a user supplied difficulty. Empty input means medium.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case "", DifficultyMedium:
		return DifficultyMedium, nil
	case DifficultyEasy:
		return DifficultyEasy, nil
	case DifficultyHard:
		return DifficultyHard, nil
	}
	return "", fmt.Errorf("invalid difficulty %q: must be easy, medium or hard", s)
}

// Question is a single multiple-choice question as produced by the LLM.
type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation"`
}

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return errors.New("question text is empty")
	}
	if len(q.Options) != OptionCount {
		return fmt.Errorf("question has %d options, want %d", len(q.Options), OptionCount)
	}
	if q.Answer < 0 || q.Answer >= len(q.Options) {
		return fmt.Errorf("answer index %d out of range [0,%d]", q.Answer, len(q.Options)-1)
	}
	return nil
}

// QuestionBatch is the merged output of one generation request.
// Requested and Degraded are only set by the generation engine.
type QuestionBatch struct {
	Questions []Question `json:"questions"`
	Requested int        `json:"requested,omitempty"`
	Degraded  bool       `json:"degraded,omitempty"`
}

// Media is a binary attachment sent to the LLM alongside a prompt.
type Media struct {
	MIMEType string
	Data     []byte
}

// FileHandle is an opaque reference to a document already uploaded to the LLM provider.
type FileHandle struct {
	Name     string
	URI      string
	MIMEType string
}

// SourceKind tags the variant held by a ContentSource.
type SourceKind int

const (
	SourceText SourceKind = iota + 1
	SourceImages
	SourceFile
)

func (k SourceKind) String() string {
	switch k {
	case SourceText:
		return "text"
	case SourceImages:
		return "images"
	case SourceFile:
		return "file"
	}
	return "unknown"
}

// ContentSource is the material questions are generated from. Exactly one of
// the payload fields is meaningful, selected by Kind.
type ContentSource struct {
	Kind   SourceKind
	Text   string
	Images []Media
	File   FileHandle
}

func TextSource(text string) ContentSource {
	return ContentSource{Kind: SourceText, Text: text}
}

func ImageSource(images []Media) ContentSource {
	return ContentSource{Kind: SourceImages, Images: images}
}

func FileSource(handle FileHandle) ContentSource {
	return ContentSource{Kind: SourceFile, File: handle}
}

// MaxQuestionCount is the largest question count a single request may ask for.
const MaxQuestionCount = 200

// GenerationRequest is the immutable input of the generation engine.
type GenerationRequest struct {
	Source     ContentSource
	Count      int
	Language   string
	Difficulty Difficulty
}

// Validate rejects requests the engine cannot serve.
func (r GenerationRequest) Validate() error {
	if r.Count <= 0 {
		return fmt.Errorf("question count must be positive, got %d", r.Count)
	}
	if r.Count > MaxQuestionCount {
		return fmt.Errorf("question count %d exceeds the maximum of %d", r.Count, MaxQuestionCount)
	}
	switch r.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("invalid difficulty %q", r.Difficulty)
	}
	switch r.Source.Kind {
	case SourceText:
		if strings.TrimSpace(r.Source.Text) == "" {
			return errors.New("text source is empty")
		}
	case SourceImages:
		if len(r.Source.Images) == 0 {
			return errors.New("image source has no images")
		}
	case SourceFile:
		if r.Source.File.URI == "" {
			return errors.New("file source has no URI")
		}
	default:
		return fmt.Errorf("unknown source kind %d", r.Source.Kind)
	}
	return nil
}

// Quiz is a persisted set of generated questions.
type Quiz struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	IsPublic     bool       `json:"is_public"`
	Difficulty   Difficulty `json:"difficulty"`
	Language     string     `json:"language"`
	Categories   []string   `json:"categories"`
	Questions    []Question `json:"questions"`
	CreatedAt    time.Time  `json:"created_date"`
	LastModified time.Time  `json:"last_modified_date"`
}

// Document is an uploaded source file.
type Document struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	IsPublic  bool      `json:"is_public"`
	Filename  string    `json:"filename"`
	Extension string    `json:"file_extension"`
	FileURL   string    `json:"file_url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"date"`
}

// Unanswered marks a question slot in Result.Status that has no answer yet.
const Unanswered = -1

// Result tracks one user's answers to one quiz.
type Result struct {
	ID            uuid.UUID `json:"id"`
	QuizID        uuid.UUID `json:"quiz_id"`
	UserID        string    `json:"user_id"`
	NumUnfinished int       `json:"num_unfinished"`
	NumCorrect    int       `json:"num_correct"`
	NumIncorrect  int       `json:"num_incorrect"`
	Status        []int     `json:"status"`
	CreatedAt     time.Time `json:"created_date"`
	LastModified  time.Time `json:"last_modified_date"`
}

// Quota is the per-user usage counter.
type Quota struct {
	UserID       string    `json:"user_id"`
	TotalQuizzes int       `json:"total_quizzes"`
	TotalStorage int64     `json:"total_storage"`
	CreatedAt    time.Time `json:"created_date"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
