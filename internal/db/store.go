package db

import (
	"context"

	"github.com/google/uuid"

	"learnhub/internal/models"
)

// SaveQuiz stores a generated quiz and counts it against the owner's quota.
func (db *DB) SaveQuiz(ctx context.Context, arg CreateQuizParams) (*models.Quiz, error) {
	var out *models.Quiz
	err := db.InTx(ctx, func(q *Queries) error {
		if _, err := q.GetOrCreateQuota(ctx, arg.UserID); err != nil {
			return err
		}
		quiz, err := q.CreateQuiz(ctx, arg)
		if err != nil {
			return err
		}
		if err := q.IncrementQuizCount(ctx, arg.UserID); err != nil {
			return err
		}
		out = quiz
		return nil
	})
	return out, err
}

// RemoveQuiz deletes a quiz with its results and releases the owner's quota.
func (db *DB) RemoveQuiz(ctx context.Context, id uuid.UUID) error {
	return db.InTx(ctx, func(q *Queries) error {
		owner, err := q.DeleteQuiz(ctx, id)
		if err != nil {
			return err
		}
		return q.DecrementQuizCount(ctx, owner)
	})
}

// SaveDocument records an uploaded document and adds its size to the
// owner's storage.
func (db *DB) SaveDocument(ctx context.Context, arg CreateDocumentParams) (*models.Document, error) {
	var out *models.Document
	err := db.InTx(ctx, func(q *Queries) error {
		if _, err := q.GetOrCreateQuota(ctx, arg.UserID); err != nil {
			return err
		}
		doc, err := q.CreateDocument(ctx, arg)
		if err != nil {
			return err
		}
		if err := q.IncrementStorage(ctx, arg.UserID, arg.Size); err != nil {
			return err
		}
		out = doc
		return nil
	})
	return out, err
}

// RemoveDocument deletes a document record and gives its size back to the
// owner's storage.
func (db *DB) RemoveDocument(ctx context.Context, id uuid.UUID) error {
	return db.InTx(ctx, func(q *Queries) error {
		owner, size, err := q.DeleteDocument(ctx, id)
		if err != nil {
			return err
		}
		return q.DecrementStorage(ctx, owner, size)
	})
}
