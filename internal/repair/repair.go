// Package repair turns raw LLM output into validated question batches. Model
// output is often almost-JSON: wrapped in Markdown fences, carrying raw
// newlines or LaTeX backslashes inside strings, or using single quotes. Parse
// walks a ladder of increasingly aggressive fixes and keeps the first one
// that decodes.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"learnhub/internal/models"
)

// MalformedResponseError is returned when no rung of the repair ladder
// produced valid JSON.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed LLM response (%q): %v", Sample(e.Raw, 120), e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Sample shortens s to at most n runes for logging.
func Sample(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

type wireQuestion struct {
	Question    string          `json:"question"`
	Options     []string        `json:"options"`
	Answer      json.RawMessage `json:"answer"`
	Explanation string          `json:"explanation"`
}

type wireBatch struct {
	Questions []wireQuestion `json:"questions"`
}

// rung is one step of the ladder. Each rung receives the output of the
// previous one, so fixes accumulate.
type rung struct {
	name string
	fix  func(string) string
}

var ladder = []rung{
	{"strict", func(s string) string { return s }},
	{"escape", escapeStrings},
	{"unicode", func(s string) string { return escapeStrings(normalizeUnicode(s)) }},
	{"heuristic", func(s string) string { return escapeStrings(heuristicFix(s)) }},
}

// Parse decodes every raw text and merges the questions in input order. The
// first input that cannot be repaired aborts the whole call.
func Parse(raws []string) (*models.QuestionBatch, error) {
	merged := &models.QuestionBatch{Questions: []models.Question{}}
	for i, raw := range raws {
		batch, err := ParseOne(raw)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", i, err)
		}
		merged.Questions = append(merged.Questions, batch.Questions...)
	}
	return merged, nil
}

// ParseOne decodes a single LLM response.
func ParseOne(raw string) (*models.QuestionBatch, error) {
	text := StripFences(raw)

	var (
		lastErr error
		strict  *wireBatch
	)
	candidate := text
	for i, r := range ladder {
		candidate = r.fix(candidate)
		wire, err := decode(candidate)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", r.name, err)
			continue
		}
		// Valid JSON can still be LaTeX the model forgot to escape: "\frac"
		// decodes to a form feed followed by "rac".
		if i == 0 && hasSwallowedCommand(wire) {
			strict = wire
			continue
		}
		return project(wire), nil
	}
	if strict != nil {
		return project(strict), nil
	}
	return nil, &MalformedResponseError{Raw: raw, Err: lastErr}
}

// hasSwallowedCommand reports whether a decoded string holds a backspace,
// form feed or tab directly followed by a letter.
func hasSwallowedCommand(w *wireBatch) bool {
	for _, q := range w.Questions {
		if swallowedCommand(q.Question) || swallowedCommand(q.Explanation) {
			return true
		}
		for _, o := range q.Options {
			if swallowedCommand(o) {
				return true
			}
		}
	}
	return false
}

func swallowedCommand(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '\b', '\f', '\t':
			if isLetter(s[i+1]) {
				return true
			}
		}
	}
	return false
}

// StripFences removes a Markdown code fence around the payload. Text that is
// not fenced is returned unchanged apart from surrounding whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	// A fence inside an already valid document is content, not wrapping.
	if start > 0 && json.Valid([]byte(s)) {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceLabel(body[:nl]) {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
		body = strings.TrimPrefix(body, "JSON")
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceLabel(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "json")
}

func decode(s string) (*wireBatch, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty response")
	}
	if s[0] == '[' {
		var qs []wireQuestion
		if err := json.Unmarshal([]byte(s), &qs); err != nil {
			return nil, err
		}
		return &wireBatch{Questions: qs}, nil
	}
	var b wireBatch
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// project maps wire questions onto the canonical shape. Fields the model
// added beyond the four known keys are already gone at this point.
func project(w *wireBatch) *models.QuestionBatch {
	out := &models.QuestionBatch{Questions: make([]models.Question, 0, len(w.Questions))}
	for _, q := range w.Questions {
		out.Questions = append(out.Questions, models.Question{
			Question:    q.Question,
			Options:     q.Options,
			Answer:      parseAnswer(q.Answer, q.Options),
			Explanation: q.Explanation,
		})
	}
	return out
}

// parseAnswer accepts an index as a number or numeric string, an option
// letter A-D, or the literal option text. Anything else yields -1, which
// fails question validation downstream.
func parseAnswer(raw json.RawMessage, options []string) int {
	if len(raw) == 0 || string(raw) == "null" {
		return -1
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n != float64(int(n)) {
			return -1
		}
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return -1
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if len(s) == 1 {
		c := s[0] | 0x20
		if c >= 'a' && c <= 'd' {
			return int(c - 'a')
		}
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), s) {
			return i
		}
	}
	return -1
}
