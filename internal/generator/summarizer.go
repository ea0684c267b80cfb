package generator

import (
	"context"
	"errors"
	"strings"

	"learnhub/internal/models"
)

// Summarizer collapses a run of page images into text. Callers are
// responsible for keeping the image count within what the LLM accepts.
type Summarizer struct {
	llm    LLM
	prompt string
}

func NewSummarizer(llm LLM, prompts *PromptBuilder) *Summarizer {
	return &Summarizer{llm: llm, prompt: prompts.Summary()}
}

func (s *Summarizer) Summarize(ctx context.Context, images []models.Media) (string, error) {
	if len(images) == 0 {
		return "", errors.New("no images to summarize")
	}
	text, err := s.llm.Generate(ctx, s.prompt, images)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
