package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"learnhub/internal/models"
)

const quizColumns = `id, user_id, title, is_public, difficulty, language, categories, questions, created_at, last_modified`

// CreateQuizParams holds the fields of a new quiz.
type CreateQuizParams struct {
	UserID     string
	Title      string
	IsPublic   bool
	Difficulty models.Difficulty
	Language   string
	Categories []string
	Questions  []models.Question
}

const createQuiz = `-- name: CreateQuiz :one
INSERT INTO quizzes (id, user_id, title, is_public, difficulty, language, categories, questions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + quizColumns

func (q *Queries) CreateQuiz(ctx context.Context, arg CreateQuizParams) (*models.Quiz, error) {
	questions, err := json.Marshal(arg.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	categories := arg.Categories
	if categories == nil {
		categories = []string{}
	}
	row := q.db.QueryRow(ctx, createQuiz,
		uuid.New(), arg.UserID, arg.Title, arg.IsPublic, string(arg.Difficulty), arg.Language, categories, questions,
	)
	return scanQuiz(row)
}

const getQuiz = `-- name: GetQuiz :one
SELECT ` + quizColumns + ` FROM quizzes WHERE id = $1`

func (q *Queries) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	quiz, err := scanQuiz(q.db.QueryRow(ctx, getQuiz, id))
	if err != nil {
		return nil, notFound(err, "quiz")
	}
	return quiz, nil
}

const getQuizForUpdate = `-- name: GetQuizForUpdate :one
SELECT ` + quizColumns + ` FROM quizzes WHERE id = $1 FOR UPDATE`

// UpdateQuizParams replaces the editable fields of a quiz.
type UpdateQuizParams struct {
	ID         uuid.UUID
	Title      string
	IsPublic   bool
	Difficulty models.Difficulty
	Categories []string
	Questions  []models.Question
}

const updateQuiz = `-- name: UpdateQuiz :one
UPDATE quizzes
SET title = $2, is_public = $3, difficulty = $4, categories = $5, questions = $6, last_modified = now()
WHERE id = $1
RETURNING ` + quizColumns

func (q *Queries) UpdateQuiz(ctx context.Context, arg UpdateQuizParams) (*models.Quiz, error) {
	questions, err := json.Marshal(arg.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}
	categories := arg.Categories
	if categories == nil {
		categories = []string{}
	}
	quiz, err := scanQuiz(q.db.QueryRow(ctx, updateQuiz,
		arg.ID, arg.Title, arg.IsPublic, string(arg.Difficulty), categories, questions,
	))
	if err != nil {
		return nil, notFound(err, "quiz")
	}
	return quiz, nil
}

const deleteQuiz = `-- name: DeleteQuiz :one
DELETE FROM quizzes WHERE id = $1 RETURNING user_id`

// DeleteQuiz deletes a quiz and its results and returns the owner's ID.
func (q *Queries) DeleteQuiz(ctx context.Context, id uuid.UUID) (string, error) {
	var owner string
	if err := q.db.QueryRow(ctx, deleteQuiz, id).Scan(&owner); err != nil {
		return "", notFound(err, "quiz")
	}
	return owner, nil
}

// QuizFilter narrows SearchQuizzes and CountQuizzes. Nil fields are ignored.
type QuizFilter struct {
	UserID          *string
	IsPublic        *bool
	MinCreated      *time.Time
	MaxCreated      *time.Time
	MinLastModified *time.Time
	MaxLastModified *time.Time
	Difficulty      *string
	Categories      []string
	Title           *string
}

func (f QuizFilter) where() *where {
	w := &where{}
	if f.UserID != nil {
		w.add("user_id = $%d", *f.UserID)
	}
	if f.IsPublic != nil {
		w.add("is_public = $%d", *f.IsPublic)
	}
	if f.MinCreated != nil {
		w.add("created_at >= $%d", *f.MinCreated)
	}
	if f.MaxCreated != nil {
		w.add("created_at <= $%d", *f.MaxCreated)
	}
	if f.MinLastModified != nil {
		w.add("last_modified >= $%d", *f.MinLastModified)
	}
	if f.MaxLastModified != nil {
		w.add("last_modified <= $%d", *f.MaxLastModified)
	}
	if f.Difficulty != nil {
		w.add("difficulty = $%d", *f.Difficulty)
	}
	if len(f.Categories) > 0 {
		w.add("categories && $%d", f.Categories)
	}
	if f.Title != nil && *f.Title != "" {
		w.add("strpos(lower(title), lower($%d)) > 0", *f.Title)
	}
	return w
}

// Page selects a window of a listing. A zero Size means no limit.
type Page struct {
	Start int
	Size  int
}

func (q *Queries) SearchQuizzes(ctx context.Context, f QuizFilter, p Page) ([]models.Quiz, error) {
	w := f.where()
	sql := "SELECT " + quizColumns + " FROM quizzes" + w.clause() + " ORDER BY created_at DESC" + w.page(p)
	rows, err := q.db.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Quiz{}
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *quiz)
	}
	return out, rows.Err()
}

func (q *Queries) CountQuizzes(ctx context.Context, f QuizFilter) (int64, error) {
	w := f.where()
	var n int64
	err := q.db.QueryRow(ctx, "SELECT count(*) FROM quizzes"+w.clause(), w.args...).Scan(&n)
	return n, err
}

func scanQuiz(row pgx.Row) (*models.Quiz, error) {
	var (
		quiz       models.Quiz
		difficulty string
		questions  []byte
	)
	err := row.Scan(
		&quiz.ID, &quiz.UserID, &quiz.Title, &quiz.IsPublic, &difficulty, &quiz.Language,
		&quiz.Categories, &questions, &quiz.CreatedAt, &quiz.LastModified,
	)
	if err != nil {
		return nil, err
	}
	quiz.Difficulty = models.Difficulty(difficulty)
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of quiz %s: %w", quiz.ID, err)
	}
	if quiz.Categories == nil {
		quiz.Categories = []string{}
	}
	return &quiz, nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

// add appends cond, whose single %d is replaced by the argument position.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) page(p Page) string {
	var s string
	if p.Size > 0 {
		w.args = append(w.args, p.Size)
		s += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	if p.Start > 0 {
		w.args = append(w.args, p.Start)
		s += fmt.Sprintf(" OFFSET $%d", len(w.args))
	}
	return s
}
