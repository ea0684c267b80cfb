package db

import (
	"context"
	"fmt"

	"learnhub/internal/models"
)

// QuotaExceededError reports a user at or over a limit.
type QuotaExceededError struct {
	Resource string
	Used     int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d of %d used", e.Resource, e.Used, e.Limit)
}

const getOrCreateQuota = `-- name: GetOrCreateQuota :one
INSERT INTO quotas (user_id) VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING user_id, total_quizzes, total_storage, created_at, last_updated`

// GetOrCreateQuota returns the user's quota row, creating an empty one.
func (q *Queries) GetOrCreateQuota(ctx context.Context, userID string) (*models.Quota, error) {
	var qt models.Quota
	err := q.db.QueryRow(ctx, getOrCreateQuota, userID).Scan(
		&qt.UserID, &qt.TotalQuizzes, &qt.TotalStorage, &qt.CreatedAt, &qt.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &qt, nil
}

// CheckQuizQuota returns a *QuotaExceededError if the user cannot create
// another quiz.
func (q *Queries) CheckQuizQuota(ctx context.Context, userID string) (*models.Quota, error) {
	qt, err := q.GetOrCreateQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit, err := q.constantOr(ctx, MaxQuizzesPerUser, DefaultMaxQuizzes)
	if err != nil {
		return nil, err
	}
	if int64(qt.TotalQuizzes) >= limit {
		return qt, &QuotaExceededError{Resource: "quiz", Used: int64(qt.TotalQuizzes), Limit: limit}
	}
	return qt, nil
}

// CheckStorageQuota returns a *QuotaExceededError if size more bytes would
// exceed the user's storage limit.
func (q *Queries) CheckStorageQuota(ctx context.Context, userID string, size int64) (*models.Quota, error) {
	qt, err := q.GetOrCreateQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit, err := q.constantOr(ctx, MaxStoragePerUserBytes, DefaultMaxStorageBytes)
	if err != nil {
		return nil, err
	}
	if qt.TotalStorage+size > limit {
		return qt, &QuotaExceededError{Resource: "storage", Used: qt.TotalStorage, Limit: limit}
	}
	return qt, nil
}

const addQuizCount = `-- name: AddQuizCount :exec
UPDATE quotas SET total_quizzes = GREATEST(total_quizzes + $2, 0), last_updated = now()
WHERE user_id = $1`

func (q *Queries) IncrementQuizCount(ctx context.Context, userID string) error {
	_, err := q.db.Exec(ctx, addQuizCount, userID, 1)
	return err
}

func (q *Queries) DecrementQuizCount(ctx context.Context, userID string) error {
	_, err := q.db.Exec(ctx, addQuizCount, userID, -1)
	return err
}

const addStorage = `-- name: AddStorage :exec
UPDATE quotas SET total_storage = GREATEST(total_storage + $2, 0), last_updated = now()
WHERE user_id = $1`

func (q *Queries) IncrementStorage(ctx context.Context, userID string, size int64) error {
	_, err := q.db.Exec(ctx, addStorage, userID, size)
	return err
}

func (q *Queries) DecrementStorage(ctx context.Context, userID string, size int64) error {
	_, err := q.db.Exec(ctx, addStorage, userID, -size)
	return err
}
