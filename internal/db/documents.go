package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"learnhub/internal/models"
)

const documentColumns = `id, user_id, is_public, filename, extension, file_url, size, created_at`

type CreateDocumentParams struct {
	ID        uuid.UUID
	UserID    string
	IsPublic  bool
	Filename  string
	Extension string
	FileURL   string
	Size      int64
}

const createDocument = `-- name: CreateDocument :one
INSERT INTO documents (id, user_id, is_public, filename, extension, file_url, size)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + documentColumns

func (q *Queries) CreateDocument(ctx context.Context, arg CreateDocumentParams) (*models.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, createDocument,
		arg.ID, arg.UserID, arg.IsPublic, arg.Filename, arg.Extension, arg.FileURL, arg.Size,
	))
}

const getDocument = `-- name: GetDocument :one
SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

func (q *Queries) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := scanDocument(q.db.QueryRow(ctx, getDocument, id))
	if err != nil {
		return nil, notFound(err, "document")
	}
	return doc, nil
}

const deleteDocument = `-- name: DeleteDocument :one
DELETE FROM documents WHERE id = $1 RETURNING user_id, size`

// DeleteDocument deletes a document record and returns its owner and size.
func (q *Queries) DeleteDocument(ctx context.Context, id uuid.UUID) (string, int64, error) {
	var (
		owner string
		size  int64
	)
	if err := q.db.QueryRow(ctx, deleteDocument, id).Scan(&owner, &size); err != nil {
		return "", 0, notFound(err, "document")
	}
	return owner, size, nil
}

// DocumentFilter narrows SearchDocuments and CountDocuments.
type DocumentFilter struct {
	UserID    *string
	IsPublic  *bool
	MinDate   *time.Time
	MaxDate   *time.Time
	Filename  *string
	Extension *string
}

func (f DocumentFilter) where() *where {
	w := &where{}
	if f.UserID != nil {
		w.add("user_id = $%d", *f.UserID)
	}
	if f.IsPublic != nil {
		w.add("is_public = $%d", *f.IsPublic)
	}
	if f.MinDate != nil {
		w.add("created_at >= $%d", *f.MinDate)
	}
	if f.MaxDate != nil {
		w.add("created_at <= $%d", *f.MaxDate)
	}
	if f.Filename != nil && *f.Filename != "" {
		w.add("strpos(lower(filename), lower($%d)) > 0", *f.Filename)
	}
	if f.Extension != nil && *f.Extension != "" {
		w.add("extension = $%d", *f.Extension)
	}
	return w
}

func (q *Queries) SearchDocuments(ctx context.Context, f DocumentFilter, p Page) ([]models.Document, error) {
	w := f.where()
	sql := "SELECT " + documentColumns + " FROM documents" + w.clause() + " ORDER BY created_at DESC" + w.page(p)
	rows, err := q.db.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (q *Queries) CountDocuments(ctx context.Context, f DocumentFilter) (int64, error) {
	w := f.where()
	var n int64
	err := q.db.QueryRow(ctx, "SELECT count(*) FROM documents"+w.clause(), w.args...).Scan(&n)
	return n, err
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.UserID, &d.IsPublic, &d.Filename, &d.Extension, &d.FileURL, &d.Size, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
