package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"learnhub/internal/db"
	"learnhub/internal/extract"
	"learnhub/internal/logger"
	"learnhub/internal/models"
	"learnhub/internal/r2"
	"learnhub/internal/rag"
)

// DocumentStore records uploaded documents against the storage quota.
type DocumentStore interface {
	CheckStorageQuota(ctx context.Context, userID string, size int64) (*models.Quota, error)
	SaveDocument(ctx context.Context, arg db.CreateDocumentParams) (*models.Document, error)
	RemoveDocument(ctx context.Context, id uuid.UUID) error
}

// ObjectStore keeps the uploaded bytes.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type Indexer interface {
	Add(ctx context.Context, doc rag.Document) (*rag.AddResult, error)
}

// ErrIndexUnavailable is returned by Index when no vector store is configured.
var ErrIndexUnavailable = errors.New("document index is not configured")

// Library stores uploaded documents and feeds them to the vector index.
type Library struct {
	store   DocumentStore
	objects ObjectStore
	index   Indexer
	log     *logger.Logger
}

// NewLibrary builds a Library. objects and index may be nil: without
// objects documents are recorded without a file URL, without index Index
// fails with ErrIndexUnavailable.
func NewLibrary(store DocumentStore, objects ObjectStore, index Indexer, log *logger.Logger) *Library {
	return &Library{store: store, objects: objects, index: index, log: log}
}

// Upload checks the storage quota, stores the bytes and records the document.
func (l *Library) Upload(ctx context.Context, userID string, isPublic bool, filename string, data []byte) (*models.Document, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	if filename == "" || len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	size := int64(len(data))
	if _, err := l.store.CheckStorageQuota(ctx, userID, size); err != nil {
		return nil, err
	}

	id := uuid.New()
	var key, url string
	if l.objects != nil {
		key = r2.ObjectKey(userID, id, filename)
		var err error
		url, err = l.objects.Upload(ctx, key, extract.MIMEType(filename), bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", filename, err)
		}
	}

	doc, err := l.store.SaveDocument(ctx, db.CreateDocumentParams{
		ID:        id,
		UserID:    userID,
		IsPublic:  isPublic,
		Filename:  filename,
		Extension: strings.ToLower(filepath.Ext(filename)),
		FileURL:   url,
		Size:      size,
	})
	if err != nil {
		if key != "" {
			if derr := l.objects.Delete(context.WithoutCancel(ctx), key); derr != nil {
				l.log.Warn("Failed to remove orphaned object", "key", key, "error", derr)
			}
		}
		return nil, fmt.Errorf("record %s: %w", filename, err)
	}
	l.log.Info("Document uploaded", "document_id", doc.ID, "user_id", userID, "size", size)
	return doc, nil
}

// IndexOutcome is stored as the result of a completed indexing task.
type IndexOutcome struct {
	Document *models.Document `json:"document"`
	Chunks   int              `json:"chunks"`
}

// Index extracts the text of a document, uploads it and adds it to the
// vector index under the same ID. A document that fails to index is removed
// again, object and storage charge included.
func (l *Library) Index(ctx context.Context, userID string, isPublic bool, filename string, data []byte, progress func(string)) (*IndexOutcome, error) {
	if l.index == nil {
		return nil, ErrIndexUnavailable
	}
	progress(StepExtracting)
	text, err := DocumentText(filename, data)
	if err != nil {
		return nil, err
	}

	progress(StepUploading)
	doc, err := l.Upload(ctx, userID, isPublic, filename, data)
	if err != nil {
		return nil, err
	}

	progress(StepIndexing)
	res, err := l.index.Add(ctx, rag.Document{
		ID:       doc.ID,
		UserID:   userID,
		IsPublic: isPublic,
		Filename: filename,
		Text:     text,
	})
	if err != nil {
		l.discard(ctx, userID, filename, doc.ID)
		return nil, fmt.Errorf("index %s: %w", filename, err)
	}
	return &IndexOutcome{Document: doc, Chunks: res.Chunks}, nil
}

// discard undoes Upload. Failures are logged; the indexing error is what the
// caller sees.
func (l *Library) discard(ctx context.Context, userID, filename string, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	if err := l.store.RemoveDocument(ctx, id); err != nil {
		l.log.Error("Failed to remove unindexed document", "document_id", id, "error", err)
	}
	if l.objects != nil {
		key := r2.ObjectKey(userID, id, filename)
		if err := l.objects.Delete(ctx, key); err != nil {
			l.log.Warn("Failed to remove orphaned object", "key", key, "error", err)
		}
	}
}
