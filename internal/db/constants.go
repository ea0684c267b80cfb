package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Known constant keys and their defaults.
const (
	MaxQuizzesPerUser      = "MAX_QUIZZES_PER_USER"
	MaxStoragePerUserBytes = "MAX_STORAGE_PER_USER_BYTES"
	DefaultMaxQuizzes      = 100
	DefaultMaxStorageBytes = 1 << 30
)

var defaultConstants = map[string]int64{
	MaxQuizzesPerUser:      DefaultMaxQuizzes,
	MaxStoragePerUserBytes: DefaultMaxStorageBytes,
}

const getConstant = `-- name: GetConstant :one
SELECT value FROM constants WHERE key = $1`

// GetConstant returns the value of key and whether it is set.
func (q *Queries) GetConstant(ctx context.Context, key string) (int64, bool, error) {
	var v int64
	err := q.db.QueryRow(ctx, getConstant, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// constantOr returns key's value or def when it is unset.
func (q *Queries) constantOr(ctx context.Context, key string, def int64) (int64, error) {
	v, ok, err := q.GetConstant(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

const listConstants = `-- name: ListConstants :many
SELECT key, value FROM constants ORDER BY key`

func (q *Queries) ListConstants(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.Query(ctx, listConstants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k string
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

const setConstant = `-- name: SetConstant :exec
INSERT INTO constants (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

func (q *Queries) SetConstant(ctx context.Context, key string, value int64) error {
	_, err := q.db.Exec(ctx, setConstant, key, value)
	return err
}

const initConstant = `-- name: InitConstant :exec
INSERT INTO constants (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO NOTHING`

// InitDefaultConstants inserts defaults for keys that are not set yet.
func (q *Queries) InitDefaultConstants(ctx context.Context) error {
	for _, key := range []string{MaxQuizzesPerUser, MaxStoragePerUserBytes} {
		if _, err := q.db.Exec(ctx, initConstant, key, defaultConstants[key]); err != nil {
			return err
		}
	}
	return nil
}

const listCategories = `-- name: ListCategories :many
SELECT name FROM categories ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
