package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"learnhub/internal/models"
)

const resultColumns = `id, quiz_id, user_id, num_unfinished, num_correct, num_incorrect, status, created_at, last_modified`

// AnswerOutOfRangeError is returned for a question index the quiz lacks.
type AnswerOutOfRangeError struct {
	Index int
	Len   int
}

func (e *AnswerOutOfRangeError) Error() string {
	return fmt.Sprintf("question index %d out of range [0,%d)", e.Index, e.Len)
}

const createResult = `-- name: CreateResult :exec
INSERT INTO results (id, quiz_id, user_id, num_unfinished, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (quiz_id, user_id) DO NOTHING`

const getResultByQuizUser = `-- name: GetResultByQuizUser :one
SELECT ` + resultColumns + ` FROM results WHERE quiz_id = $1 AND user_id = $2`

// CreateResult starts an attempt of quizID by userID with every question
// unanswered. An existing attempt for the pair is returned unchanged.
func (db *DB) CreateResult(ctx context.Context, quizID uuid.UUID, userID string) (*models.Result, error) {
	var res *models.Result
	err := db.InTx(ctx, func(q *Queries) error {
		quiz, err := q.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		status := NewStatus(len(quiz.Questions))
		if _, err := q.db.Exec(ctx, createResult, uuid.New(), quizID, userID, len(status), status); err != nil {
			return err
		}
		res, err = scanResult(q.db.QueryRow(ctx, getResultByQuizUser, quizID, userID))
		return err
	})
	return res, err
}

const getResult = `-- name: GetResult :one
SELECT ` + resultColumns + ` FROM results WHERE id = $1`

const getResultForUpdate = `-- name: GetResultForUpdate :one
SELECT ` + resultColumns + ` FROM results WHERE id = $1 FOR UPDATE`

func (q *Queries) GetResult(ctx context.Context, id uuid.UUID) (*models.Result, error) {
	res, err := scanResult(q.db.QueryRow(ctx, getResult, id))
	if err != nil {
		return nil, notFound(err, "result")
	}
	return res, nil
}

const saveResult = `-- name: SaveResult :one
UPDATE results
SET status = $2, num_unfinished = $3, num_correct = $4, num_incorrect = $5, last_modified = now()
WHERE id = $1
RETURNING ` + resultColumns

func (q *Queries) saveResult(ctx context.Context, r *models.Result) (*models.Result, error) {
	return scanResult(q.db.QueryRow(ctx, saveResult, r.ID, r.Status, r.NumUnfinished, r.NumCorrect, r.NumIncorrect))
}

// AnswerQuestion records answer for one question of a result and updates
// its counters.
func (db *DB) AnswerQuestion(ctx context.Context, resultID uuid.UUID, index, answer int) (*models.Result, error) {
	var out *models.Result
	err := db.InTx(ctx, func(q *Queries) error {
		res, err := scanResult(q.db.QueryRow(ctx, getResultForUpdate, resultID))
		if err != nil {
			return notFound(err, "result")
		}
		quiz, err := q.GetQuiz(ctx, res.QuizID)
		if err != nil {
			return err
		}
		if err := ApplyAnswer(res, quiz.Questions, index, answer); err != nil {
			return err
		}
		out, err = q.saveResult(ctx, res)
		return err
	})
	return out, err
}

const deleteResult = `-- name: DeleteResult :exec
DELETE FROM results WHERE id = $1`

func (q *Queries) DeleteResult(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteResult, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("result %w", ErrNotFound)
	}
	return nil
}

// ResultSort orders result listings. Empty Column keeps creation order.
type ResultSort struct {
	Column string
	Desc   bool
}

var resultSortColumns = map[string]string{
	"created_date":       "created_at",
	"last_modified_date": "last_modified",
	"num_correct":        "num_correct",
	"num_incorrect":      "num_incorrect",
	"num_unfinished":     "num_unfinished",
}

// ValidResultSort reports whether column can be sorted on.
func ValidResultSort(column string) bool {
	_, ok := resultSortColumns[column]
	return column == "" || ok
}

func (s ResultSort) clause() string {
	col, ok := resultSortColumns[s.Column]
	if !ok {
		return " ORDER BY created_at"
	}
	if s.Desc {
		return " ORDER BY " + col + " DESC"
	}
	return " ORDER BY " + col
}

func (q *Queries) ListResultsByQuiz(ctx context.Context, quizID uuid.UUID, p Page, s ResultSort) ([]models.Result, error) {
	return q.listResults(ctx, "quiz_id", quizID, p, s)
}

func (q *Queries) ListResultsByUser(ctx context.Context, userID string, p Page, s ResultSort) ([]models.Result, error) {
	return q.listResults(ctx, "user_id", userID, p, s)
}

func (q *Queries) listResults(ctx context.Context, column string, value any, p Page, s ResultSort) ([]models.Result, error) {
	w := &where{}
	w.add(column+" = $%d", value)
	sql := "SELECT " + resultColumns + " FROM results" + w.clause() + s.clause() + w.page(p)
	rows, err := q.db.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const listResultsForQuizUpdate = `-- name: ListResultsForQuizUpdate :many
SELECT ` + resultColumns + ` FROM results WHERE quiz_id = $1 FOR UPDATE`

// UpdateQuizAndResults saves an edited quiz and rescores every attempt of it
// against the new questions.
func (db *DB) UpdateQuizAndResults(ctx context.Context, arg UpdateQuizParams) (*models.Quiz, error) {
	var out *models.Quiz
	err := db.InTx(ctx, func(q *Queries) error {
		if _, err := scanQuiz(q.db.QueryRow(ctx, getQuizForUpdate, arg.ID)); err != nil {
			return notFound(err, "quiz")
		}
		quiz, err := q.UpdateQuiz(ctx, arg)
		if err != nil {
			return err
		}

		rows, err := q.db.Query(ctx, listResultsForQuizUpdate, arg.ID)
		if err != nil {
			return err
		}
		var results []*models.Result
		for rows.Next() {
			r, err := scanResult(rows)
			if err != nil {
				rows.Close()
				return err
			}
			results = append(results, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range results {
			Rescore(r, quiz.Questions)
			if _, err := q.saveResult(ctx, r); err != nil {
				return err
			}
		}
		out = quiz
		return nil
	})
	return out, err
}

// NewStatus returns n unanswered slots.
func NewStatus(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = models.Unanswered
	}
	return s
}

// ApplyAnswer sets the answer at index and moves the counters: an
// unanswered slot leaves num_unfinished, and a changed answer moves between
// num_correct and num_incorrect.
func ApplyAnswer(r *models.Result, questions []models.Question, index, answer int) error {
	if index < 0 || index >= len(questions) || index >= len(r.Status) {
		return &AnswerOutOfRangeError{Index: index, Len: len(questions)}
	}
	correct := questions[index].Answer
	old := r.Status[index]
	r.Status[index] = answer

	switch {
	case old == models.Unanswered:
		r.NumUnfinished--
		if answer == correct {
			r.NumCorrect++
		} else {
			r.NumIncorrect++
		}
	case old == correct && answer != correct:
		r.NumCorrect--
		r.NumIncorrect++
	case old != correct && answer == correct:
		r.NumIncorrect--
		r.NumCorrect++
	}
	return nil
}

// Rescore resizes the status to the question count, keeping answers of
// questions that still exist, and recomputes every counter.
func Rescore(r *models.Result, questions []models.Question) {
	status := NewStatus(len(questions))
	copy(status, r.Status)
	r.Status = status
	r.NumUnfinished, r.NumCorrect, r.NumIncorrect = 0, 0, 0
	for i, a := range status {
		switch {
		case a == models.Unanswered:
			r.NumUnfinished++
		case a == questions[i].Answer:
			r.NumCorrect++
		default:
			r.NumIncorrect++
		}
	}
}

func scanResult(row pgx.Row) (*models.Result, error) {
	var r models.Result
	err := row.Scan(&r.ID, &r.QuizID, &r.UserID, &r.NumUnfinished, &r.NumCorrect, &r.NumIncorrect,
		&r.Status, &r.CreatedAt, &r.LastModified)
	if err != nil {
		return nil, err
	}
	if r.Status == nil {
		r.Status = []int{}
	}
	return &r, nil
}
