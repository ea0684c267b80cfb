package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"learnhub/internal/chunker"
	"learnhub/internal/models"
	"learnhub/internal/ranker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	media   [][]models.Media
	files   []models.FileHandle

	generate func(ctx context.Context, prompt string, media []models.Media) (string, error)
	fromFile func(ctx context.Context, prompt string, file models.FileHandle) (string, error)
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, media []models.Media) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.media = append(f.media, media)
	f.mu.Unlock()
	return f.generate(ctx, prompt, media)
}

func (f *fakeLLM) GenerateFromFile(ctx context.Context, prompt string, file models.FileHandle) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.files = append(f.files, file)
	f.mu.Unlock()
	return f.fromFile(ctx, prompt, file)
}

func (f *fakeLLM) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

var countPattern = regexp.MustCompile(`generate (\d+) insightful`)

func requestedCount(t *testing.T, prompt string) int {
	t.Helper()
	m := countPattern.FindStringSubmatch(prompt)
	require.NotNil(t, m, "prompt does not ask for a question count")
	n, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return n
}

func document(prompt string) string {
	start := strings.Index(prompt, "<Begin Document>\n")
	end := strings.Index(prompt, "\n<End Document>")
	if start < 0 || end < 0 {
		return ""
	}
	return prompt[start+len("<Begin Document>\n") : end]
}

func questionsJSON(label string, n int) string {
	qs := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, models.Question{
			Question:    fmt.Sprintf("%s-%d", label, i),
			Options:     []string{"a", "b", "c", "d"},
			Answer:      i % 4,
			Explanation: "because",
		})
	}
	b, _ := json.Marshal(map[string]any{"questions": qs})
	return string(b)
}

func texts(batch *models.QuestionBatch) []string {
	var out []string
	for _, q := range batch.Questions {
		out = append(out, q.Question)
	}
	return out
}

func testConfig() Config {
	return Config{
		TextChunkSize:       100,
		TextChunkOverlap:    10,
		ImageChunkSize:      2,
		ImageChunkOverlap:   1,
		SummaryBatchSize:    2,
		SummaryBatchOverlap: 1,
		CallTimeout:         time.Second,
	}
}

func newEngine(t *testing.T, llm LLM, cfg Config) *Engine {
	t.Helper()
	e, err := New(llm, cfg)
	require.NoError(t, err)
	return e
}

// threeChunkText yields chunks starting with A, B and C under testConfig.
func threeChunkText() string {
	return strings.Repeat("A", 90) + strings.Repeat("B", 90) + strings.Repeat("C", 70)
}

func textRequest(text string, count int) models.GenerationRequest {
	return models.GenerationRequest{
		Source:     models.TextSource(text),
		Count:      count,
		Language:   "English",
		Difficulty: models.DifficultyMedium,
	}
}

func TestDistributeSumsToTotal(t *testing.T) {
	for total := 1; total <= 40; total++ {
		for n := 1; n <= total; n++ {
			alloc := Distribute(total, n)
			require.Len(t, alloc, n)

			base, rem := total/n, total%n
			sum, extra := 0, 0
			for i, a := range alloc {
				sum += a
				if a == base+1 {
					extra++
					assert.Less(t, i, rem, "extra questions go to the earliest chunks")
				} else {
					assert.Equal(t, base, a)
				}
			}
			assert.Equal(t, total, sum)
			assert.Equal(t, rem, extra)
		}
	}
	assert.Nil(t, Distribute(3, 0))
	assert.Equal(t, []int{2, 2, 1}, Distribute(5, 3))
}

func TestGenerateDistributesAcrossChunksInOrder(t *testing.T) {
	var mu sync.Mutex
	asked := map[string]int{}
	llm := &fakeLLM{generate: func(_ context.Context, prompt string, _ []models.Media) (string, error) {
		label := document(prompt)[:1]
		n := requestedCount(t, prompt)
		mu.Lock()
		asked[label] = n
		mu.Unlock()
		// Finish in reverse chunk order.
		time.Sleep(time.Duration('D'-label[0]) * 15 * time.Millisecond)
		return questionsJSON(label, n), nil
	}}

	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest(threeChunkText(), 5))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A": 2, "B": 2, "C": 1}, asked)
	assert.Equal(t, []string{"A-0", "A-1", "B-0", "B-1", "C-0"}, texts(batch))
	assert.Equal(t, 5, batch.Requested)
	assert.False(t, batch.Degraded)
	assert.Len(t, llm.calls(), 3)
}

func TestGenerateRanksWhenChunksOutnumberQuota(t *testing.T) {
	words := []string{"cell", "membrane", "protein", "energy", "mitochondria", "nucleus", "dna", "enzyme"}
	var sb strings.Builder
	for i := 0; sb.Len() < 600; i++ {
		sb.WriteString(words[(i*i+i/3)%len(words)])
		sb.WriteByte(' ')
	}
	text := sb.String()[:600]

	tc, err := chunker.NewText(100, 10)
	require.NoError(t, err)
	chunks := tc.Chunk(text)
	require.Len(t, chunks, 7)

	var want []string
	for _, rc := range ranker.TopK(ranker.New().Rank(chunks), 2) {
		want = append(want, rc.Chunk.Text)
	}

	var mu sync.Mutex
	var got []string
	llm := &fakeLLM{generate: func(_ context.Context, prompt string, _ []models.Media) (string, error) {
		assert.Equal(t, 1, requestedCount(t, prompt))
		mu.Lock()
		got = append(got, document(prompt))
		mu.Unlock()
		return questionsJSON("q", 1), nil
	}}

	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest(text, 2))
	require.NoError(t, err)

	assert.Len(t, batch.Questions, 2)
	assert.ElementsMatch(t, want, got)
	assert.Len(t, llm.calls(), 2)
}

func TestGenerateSurvivesFailedChunk(t *testing.T) {
	for name, fail := range map[string]func() (string, error){
		"transport error": func() (string, error) { return "", errors.New("503 service unavailable") },
		"malformed json":  func() (string, error) { return "Sorry, I cannot help with that.", nil },
	} {
		t.Run(name, func(t *testing.T) {
			llm := &fakeLLM{generate: func(_ context.Context, prompt string, _ []models.Media) (string, error) {
				label := document(prompt)[:1]
				if label == "B" {
					return fail()
				}
				return questionsJSON(label, requestedCount(t, prompt)), nil
			}}

			batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest(threeChunkText(), 3))
			require.NoError(t, err)

			require.GreaterOrEqual(t, len(batch.Questions), 2)
			assert.Equal(t, []string{"A-0", "C-0"}, texts(batch)[:2])
		})
	}
}

func TestGenerateStopsAfterMaxAttempts(t *testing.T) {
	llm := &fakeLLM{generate: func(context.Context, string, []models.Media) (string, error) {
		return `{"questions": []}`, nil
	}}

	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest("A short document.", 3))
	require.NoError(t, err)

	assert.Len(t, llm.calls(), MaxAttempts)
	assert.NotNil(t, batch.Questions)
	assert.Empty(t, batch.Questions)
	assert.True(t, batch.Degraded)
	assert.Equal(t, 3, batch.Requested)
}

func TestGenerateRetriesUntilQuota(t *testing.T) {
	llm := &fakeLLM{generate: func(_ context.Context, prompt string, _ []models.Media) (string, error) {
		return questionsJSON("q", 1), nil
	}}

	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest("A short document.", 3))
	require.NoError(t, err)

	calls := llm.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 3, requestedCount(t, calls[0]))
	assert.Equal(t, 2, requestedCount(t, calls[1]))
	assert.Equal(t, 1, requestedCount(t, calls[2]))
	assert.Len(t, batch.Questions, 3)
	assert.False(t, batch.Degraded)
}

func TestGenerateTruncatesOverProduction(t *testing.T) {
	llm := &fakeLLM{generate: func(_ context.Context, prompt string, _ []models.Media) (string, error) {
		return questionsJSON("q", requestedCount(t, prompt)+3), nil
	}}

	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest("A short document.", 4))
	require.NoError(t, err)

	assert.Equal(t, []string{"q-0", "q-1", "q-2", "q-3"}, texts(batch))
	assert.Len(t, llm.calls(), 1)
}

func TestGenerateDropsInvalidQuestions(t *testing.T) {
	raw := `{"questions":[
		{"question":"three options","options":["a","b","c"],"answer":0,"explanation":""},
		{"question":"answer out of range","options":["a","b","c","d"],"answer":4,"explanation":""},
		{"question":"good","options":["a","b","c","d"],"answer":3,"explanation":""}
	]}`
	llm := &fakeLLM{generate: func(context.Context, string, []models.Media) (string, error) {
		return raw, nil
	}}

	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest("A short document.", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, texts(batch))
}

func TestGenerateDedup(t *testing.T) {
	llm := &fakeLLM{generate: func(context.Context, string, []models.Media) (string, error) {
		return questionsJSON("same", 1), nil
	}}
	cfg := testConfig()
	cfg.Dedup = true

	batch, err := newEngine(t, llm, cfg).Generate(context.Background(), textRequest("A short document.", 2))
	require.NoError(t, err)

	assert.Equal(t, []string{"same-0"}, texts(batch))
	assert.True(t, batch.Degraded)
	assert.Len(t, llm.calls(), MaxAttempts)
}

func testImages(n int) []models.Media {
	images := make([]models.Media, n)
	for i := range images {
		images[i] = models.Media{MIMEType: "image/png", Data: []byte{byte(i)}}
	}
	return images
}

func TestGenerateFromImagesFansOut(t *testing.T) {
	llm := &fakeLLM{generate: func(_ context.Context, prompt string, media []models.Media) (string, error) {
		require.Contains(t, prompt, "these images")
		return questionsJSON(fmt.Sprintf("page%d", media[0].Data[0]), requestedCount(t, prompt)), nil
	}}

	req := models.GenerationRequest{Source: models.ImageSource(testImages(5)), Count: 4, Difficulty: models.DifficultyEasy}
	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"page0-0", "page1-0", "page2-0", "page3-0"}, texts(batch))
	for _, m := range llm.media {
		assert.Len(t, m, 2)
	}
}

func TestGenerateFromImagesSummarizesOnce(t *testing.T) {
	summaryPrompt := NewPromptBuilder().Summary()
	var mu sync.Mutex
	summaries := 0
	var docs []string
	llm := &fakeLLM{generate: func(_ context.Context, prompt string, media []models.Media) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if prompt == summaryPrompt {
			summaries++
			return fmt.Sprintf("Summary %d", media[0].Data[0]), nil
		}
		assert.Empty(t, media)
		docs = append(docs, document(prompt))
		return questionsJSON(fmt.Sprintf("s%d", len(docs)), 1), nil
	}}

	req := models.GenerationRequest{Source: models.ImageSource(testImages(5)), Count: 2, Difficulty: models.DifficultyHard}
	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 4, summaries)
	require.Len(t, docs, 2)
	assert.Equal(t, "Summary 0\nSummary 1\nSummary 2\nSummary 3\n", docs[0])
	assert.Equal(t, docs[0], docs[1])
	assert.Equal(t, []string{"s1-0", "s2-0"}, texts(batch))
}

func TestGenerateFromFile(t *testing.T) {
	handle := models.FileHandle{Name: "files/abc", URI: "https://example.com/files/abc", MIMEType: "application/pdf"}
	llm := &fakeLLM{fromFile: func(_ context.Context, prompt string, file models.FileHandle) (string, error) {
		assert.Equal(t, handle, file)
		assert.Contains(t, prompt, "this document")
		assert.Contains(t, prompt, "must be in Vietnamese")
		return questionsJSON("f", requestedCount(t, prompt)), nil
	}}

	req := models.GenerationRequest{Source: models.FileSource(handle), Count: 6, Language: "Vietnamese", Difficulty: models.DifficultyMedium}
	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, batch.Questions, 6)
	assert.Len(t, llm.files, 1)
}

func TestGenerateCallTimeout(t *testing.T) {
	llm := &fakeLLM{generate: func(ctx context.Context, _ string, _ []models.Media) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cfg := testConfig()
	cfg.CallTimeout = 5 * time.Millisecond

	batch, err := newEngine(t, llm, cfg).Generate(context.Background(), textRequest("A short document.", 1))
	require.NoError(t, err)
	assert.Empty(t, batch.Questions)
	assert.Len(t, llm.calls(), MaxAttempts)
}

func TestGenerateCancelled(t *testing.T) {
	llm := &fakeLLM{generate: func(context.Context, string, []models.Media) (string, error) {
		return questionsJSON("q", 1), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, llm, testConfig()).Generate(ctx, textRequest("A short document.", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, llm.calls())
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	e := newEngine(t, &fakeLLM{}, testConfig())

	_, err := e.Generate(context.Background(), textRequest("text", 0))
	assert.Error(t, err)

	_, err = e.Generate(context.Background(), textRequest("   ", 1))
	assert.Error(t, err)

	req := textRequest("text", 1)
	req.Difficulty = "impossible"
	_, err = e.Generate(context.Background(), req)
	assert.Error(t, err)
}

func TestGenerateRejectsOversizedCount(t *testing.T) {
	llm := &fakeLLM{generate: func(context.Context, string, []models.Media) (string, error) {
		return questionsJSON("q", 1), nil
	}}
	e := newEngine(t, llm, testConfig())

	_, err := e.Generate(context.Background(), textRequest("A short document.", 1<<40))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the maximum")
	assert.Empty(t, llm.calls())

	_, err = e.Generate(context.Background(), textRequest("A short document.", models.MaxQuestionCount+1))
	assert.Error(t, err)
}

func TestGenerateAcceptsMaximumCount(t *testing.T) {
	llm := &fakeLLM{}
	llm.generate = func(_ context.Context, prompt string, _ []models.Media) (string, error) {
		return questionsJSON("q", requestedCount(t, prompt)), nil
	}

	batch, err := newEngine(t, llm, testConfig()).Generate(context.Background(), textRequest("A short document.", models.MaxQuestionCount))
	require.NoError(t, err)
	assert.Len(t, batch.Questions, models.MaxQuestionCount)
	assert.False(t, batch.Degraded)
}

func TestNewRejectsBadChunking(t *testing.T) {
	cfg := testConfig()
	cfg.ImageChunkOverlap = cfg.ImageChunkSize

	_, err := New(&fakeLLM{}, cfg)
	var cfgErr *chunker.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
