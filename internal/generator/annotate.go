package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"learnhub/internal/models"
	"learnhub/internal/repair"
)

// MaxCategories is how many categories a quiz may be tagged with.
const MaxCategories = 3

// sampleSize is how many questions are shown to the model when naming or
// categorizing a quiz.
const sampleSize = 10

// Annotator derives a title and categories for a generated quiz. Both are
// best effort: failures fall back to defaults instead of failing the quiz.
type Annotator struct {
	llm     LLM
	prompts *PromptBuilder
	now     func() time.Time
}

func NewAnnotator(llm LLM, prompts *PromptBuilder) *Annotator {
	return &Annotator{llm: llm, prompts: prompts, now: time.Now}
}

// Title returns a model-written title or "Quiz generated on <date>".
func (a *Annotator) Title(ctx context.Context, language string, batch *models.QuestionBatch) string {
	fallback := fmt.Sprintf("Quiz generated on %s", a.now().Format("January 2, 2006"))
	sample := questionSample(batch)
	if len(sample) == 0 {
		return fallback
	}
	text, err := a.llm.Generate(ctx, a.prompts.Title(language, sample), nil)
	if err != nil {
		return fallback
	}
	title := strings.Trim(strings.TrimSpace(firstLine(text)), `"'*# `)
	if title == "" {
		return fallback
	}
	return repair.Sample(title, 120)
}

// Categorize picks up to MaxCategories entries of known. Names the model
// invents are discarded.
func (a *Annotator) Categorize(ctx context.Context, batch *models.QuestionBatch, known []string) ([]string, error) {
	sample := questionSample(batch)
	if len(known) == 0 || len(sample) == 0 {
		return []string{}, nil
	}
	text, err := a.llm.Generate(ctx, a.prompts.Categories(sample, known, MaxCategories), nil)
	if err != nil {
		return nil, fmt.Errorf("categorize quiz: %w", err)
	}

	var picked []string
	raw := repair.StripFences(text)
	if start, end := strings.IndexByte(raw, '['), strings.LastIndexByte(raw, ']'); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	if err := json.Unmarshal([]byte(raw), &picked); err != nil {
		return nil, fmt.Errorf("categorize quiz: unexpected response %q: %w", repair.Sample(text, 80), err)
	}

	index := make(map[string]string, len(known))
	for _, k := range known {
		index[strings.ToLower(strings.TrimSpace(k))] = k
	}
	out := []string{}
	used := make(map[string]bool)
	for _, p := range picked {
		name, ok := index[strings.ToLower(strings.TrimSpace(p))]
		if !ok || used[name] {
			continue
		}
		used[name] = true
		out = append(out, name)
		if len(out) == MaxCategories {
			break
		}
	}
	return out, nil
}

func questionSample(batch *models.QuestionBatch) []string {
	if batch == nil {
		return nil
	}
	var out []string
	for _, q := range batch.Questions {
		out = append(out, q.Question)
		if len(out) == sampleSize {
			break
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
