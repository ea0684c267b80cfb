// Package generator turns a document into exactly N multiple-choice
// questions by partitioning it, fanning requests out to an LLM and retrying
// until the quota is met or the attempt ceiling is reached.
package generator

import (
	"context"
	"fmt"

	"learnhub/internal/models"
)

// LLM is the text generation capability the engine needs.
type LLM interface {
	Generate(ctx context.Context, prompt string, media []models.Media) (string, error)
	GenerateFromFile(ctx context.Context, prompt string, file models.FileHandle) (string, error)
}

// TransientGenerationError wraps a failed LLM call for one chunk. The engine
// treats it as a zero-question contribution.
type TransientGenerationError struct {
	Chunk int
	Err   error
}

func (e *TransientGenerationError) Error() string {
	return fmt.Sprintf("generation for chunk %d failed: %v", e.Chunk, e.Err)
}

func (e *TransientGenerationError) Unwrap() error { return e.Err }
