package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"learnhub/internal/chunker"
	"learnhub/internal/logger"
	"learnhub/internal/metrics"
	"learnhub/internal/models"
	"learnhub/internal/ranker"
	"learnhub/internal/repair"
)

// MaxAttempts bounds the quota loop so an uncooperative model cannot keep a
// request alive forever.
const MaxAttempts = 10

// summaryConcurrency caps simultaneous summarization calls for one request.
const summaryConcurrency = 8

type state int

const (
	statePartitioning state = iota
	stateDispatching
	stateCollecting
	stateSatisfied
	stateRetrying
	stateExhausted
)

func (s state) String() string {
	switch s {
	case statePartitioning:
		return "PARTITIONING"
	case stateDispatching:
		return "DISPATCHING"
	case stateCollecting:
		return "COLLECTING"
	case stateSatisfied:
		return "SATISFIED"
	case stateRetrying:
		return "RETRYING"
	case stateExhausted:
		return "EXHAUSTED"
	}
	return "UNKNOWN"
}

// Config holds the chunking parameters and call hardening of the engine.
type Config struct {
	TextChunkSize       int
	TextChunkOverlap    int
	ImageChunkSize      int
	ImageChunkOverlap   int
	SummaryBatchSize    int
	SummaryBatchOverlap int
	CallTimeout         time.Duration
	Dedup               bool
}

func DefaultConfig() Config {
	return Config{
		TextChunkSize:       100000,
		TextChunkOverlap:    5000,
		ImageChunkSize:      500,
		ImageChunkOverlap:   100,
		SummaryBatchSize:    10,
		SummaryBatchOverlap: 2,
		CallTimeout:         3 * time.Minute,
	}
}

// Engine fulfils question quotas. It holds no per-request state and may be
// shared by concurrent requests.
type Engine struct {
	llm         LLM
	prompts     *PromptBuilder
	summarizer  *Summarizer
	ranker      *ranker.Ranker
	text        *chunker.TextChunker
	images      *chunker.ImageChunker
	batches     *chunker.ImageChunker
	callTimeout time.Duration
	dedup       bool
	log         *logger.Logger
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithRanker(r *ranker.Ranker) Option {
	return func(e *Engine) { e.ranker = r }
}

func WithPromptBuilder(p *PromptBuilder) Option {
	return func(e *Engine) { e.prompts = p }
}

// New validates the chunking configuration once; a bad configuration is a
// *chunker.ConfigurationError.
func New(llm LLM, cfg Config, opts ...Option) (*Engine, error) {
	text, err := chunker.NewText(cfg.TextChunkSize, cfg.TextChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("text chunker: %w", err)
	}
	images, err := chunker.NewImage(cfg.ImageChunkSize, cfg.ImageChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("image chunker: %w", err)
	}
	batches, err := chunker.NewImage(cfg.SummaryBatchSize, cfg.SummaryBatchOverlap)
	if err != nil {
		return nil, fmt.Errorf("summary batcher: %w", err)
	}

	e := &Engine{
		llm:         llm,
		ranker:      ranker.New(),
		text:        text,
		images:      images,
		batches:     batches,
		callTimeout: cfg.CallTimeout,
		dedup:       cfg.Dedup,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.prompts == nil {
		e.prompts = NewPromptBuilder()
	}
	e.summarizer = NewSummarizer(llm, e.prompts)
	return e, nil
}

func (e *Engine) Prompts() *PromptBuilder { return e.prompts }

// Generate collects req.Count questions from req.Source. It returns a short
// batch marked Degraded when MaxAttempts rounds were not enough; failed or
// unparseable LLM calls only reduce what a round contributes. The error
// return is reserved for invalid requests and context cancellation.
func (e *Engine) Generate(ctx context.Context, req models.GenerationRequest) (*models.QuestionBatch, error) {
	if req.Difficulty == "" {
		req.Difficulty = models.DifficultyMedium
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation request: %w", err)
	}

	r := &run{
		engine: e,
		req:    req,
		log:    e.log.With("source", req.Source.Kind.String(), "requested", req.Count),
		seen:   make(map[string]struct{}),
	}

	collected := make([]models.Question, 0, min(req.Count, models.MaxQuestionCount))
	attempts := 0
	for len(collected) < req.Count && attempts < MaxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled after %d attempts: %w", attempts, err)
		}
		attempts++
		remaining := req.Count - len(collected)
		r.transition(statePartitioning, attempts, "remaining", remaining)

		got := r.accept(r.attempt(ctx, attempts, remaining))
		collected = append(collected, got...)

		switch {
		case len(collected) >= req.Count:
			r.transition(stateSatisfied, attempts, "collected", len(collected))
		case attempts >= MaxAttempts:
			r.transition(stateExhausted, attempts, "collected", len(collected))
		default:
			r.transition(stateRetrying, attempts, "collected", len(collected), "gained", len(got))
		}
	}

	if len(collected) > req.Count {
		collected = collected[:req.Count]
	}
	batch := &models.QuestionBatch{
		Questions: collected,
		Requested: req.Count,
		Degraded:  len(collected) < req.Count,
	}
	metrics.RecordBatch(req.Source.Kind.String(), attempts, len(collected), batch.Degraded)
	if batch.Degraded {
		r.log.Warn("Question quota not met", "attempts", attempts, "generated", len(collected))
	} else {
		r.log.Info("Question quota met", "attempts", attempts, "generated", len(collected))
	}
	return batch, nil
}

// run is the state of a single Generate call.
type run struct {
	engine *Engine
	req    models.GenerationRequest
	log    *logger.Logger

	seen    map[string]struct{}
	summary *string
}

func (r *run) transition(s state, attempt int, kv ...interface{}) {
	r.log.Debug("Generation state", append([]interface{}{"state", s.String(), "attempt", attempt}, kv...)...)
}

func (r *run) attempt(ctx context.Context, attempt, remaining int) []models.Question {
	switch r.req.Source.Kind {
	case models.SourceText:
		return r.fromText(ctx, attempt, r.req.Source.Text, remaining)
	case models.SourceImages:
		return r.fromImages(ctx, attempt, remaining)
	case models.SourceFile:
		file := r.req.Source.File
		prompt := r.engine.prompts.File(r.req.Language, remaining, r.req.Difficulty)
		return r.dispatch(ctx, attempt, []call{{chunk: 0, count: remaining, prompt: prompt, file: &file}})
	}
	return nil
}

func (r *run) fromText(ctx context.Context, attempt int, text string, remaining int) []models.Question {
	e := r.engine
	chunks := e.text.Chunk(text)
	if len(chunks) == 0 {
		return nil
	}

	var calls []call
	if len(chunks) <= remaining {
		for i, n := range Distribute(remaining, len(chunks)) {
			calls = append(calls, call{
				chunk:  chunks[i].Index,
				count:  n,
				prompt: e.prompts.Text(r.req.Language, n, r.req.Difficulty, chunks[i].Text),
			})
		}
	} else {
		top := ranker.TopK(e.ranker.Rank(chunks), remaining)
		r.log.Debug("Ranked chunks", "attempt", attempt, "chunks", len(chunks), "selected", len(top))
		for _, rc := range top {
			calls = append(calls, call{
				chunk:  rc.Chunk.Index,
				count:  1,
				prompt: e.prompts.Text(r.req.Language, 1, r.req.Difficulty, rc.Chunk.Text),
			})
		}
	}
	return r.dispatch(ctx, attempt, calls)
}

func (r *run) fromImages(ctx context.Context, attempt, remaining int) []models.Question {
	e := r.engine
	chunks := e.images.Chunk(r.req.Source.Images)
	if len(chunks) == 0 {
		return nil
	}

	if len(chunks) <= remaining {
		var calls []call
		for i, n := range Distribute(remaining, len(chunks)) {
			calls = append(calls, call{
				chunk:  chunks[i].Index,
				count:  n,
				prompt: e.prompts.Images(r.req.Language, n, r.req.Difficulty),
				media:  chunks[i].Images,
			})
		}
		return r.dispatch(ctx, attempt, calls)
	}

	// The chunk count never changes between attempts, so once the images
	// had to be reduced to text they always will; summarize them only once.
	if r.summary == nil {
		summary, err := r.summarize(ctx, chunks)
		if err != nil {
			r.log.Warn("Summarization aborted", "attempt", attempt, "error", err)
			return nil
		}
		r.summary = &summary
	}
	if strings.TrimSpace(*r.summary) == "" {
		return nil
	}
	return r.fromText(ctx, attempt, *r.summary, remaining)
}

// summarize reduces every image chunk to text, splitting chunks into
// batches small enough for one call. Failed batches are skipped; the
// result keeps document order.
func (r *run) summarize(ctx context.Context, chunks []chunker.ImageChunk) (string, error) {
	e := r.engine
	var batches []chunker.ImageChunk
	for _, c := range chunks {
		batches = append(batches, e.batches.Chunk(c.Images)...)
	}

	summaries := make([]string, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, b := range batches {
		g.Go(func() error {
			callCtx, cancel := e.withCallTimeout(gctx)
			defer cancel()

			start := time.Now()
			text, err := e.summarizer.Summarize(callCtx, b.Images)
			if err != nil {
				metrics.RecordLLMCall("summary", metrics.OutcomeTransient, time.Since(start).Seconds())
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.log.Warn("Summarization failed", "batch", i, "error", err)
				return nil
			}
			metrics.RecordLLMCall("summary", metrics.OutcomeOK, time.Since(start).Seconds())
			summaries[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, s := range summaries {
		if s == "" {
			continue
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// call is one LLM request of a fan-out.
type call struct {
	chunk  int
	count  int
	prompt string
	media  []models.Media
	file   *models.FileHandle
}

// outcome is the result of one call. Exactly one of questions and err is meaningful.
type outcome struct {
	questions []models.Question
	err       error
}

// dispatch issues all calls concurrently and folds their outcomes in call
// order, skipping the failed ones.
func (r *run) dispatch(ctx context.Context, attempt int, calls []call) []models.Question {
	r.transition(stateDispatching, attempt, "calls", len(calls))

	outcomes := make([]outcome, len(calls))
	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = r.engine.do(ctx, calls[i])
		}(i)
	}
	wg.Wait()

	r.transition(stateCollecting, attempt)
	var merged []models.Question
	for i, o := range outcomes {
		if o.err != nil {
			var malformed *repair.MalformedResponseError
			if errors.As(o.err, &malformed) {
				r.log.Warn("Skipping unparseable chunk response", "attempt", attempt, "chunk", calls[i].chunk, "error", malformed.Err, "sample", repair.Sample(malformed.Raw, 200))
			} else {
				r.log.Warn("Skipping failed chunk", "attempt", attempt, "chunk", calls[i].chunk, "error", o.err)
			}
			continue
		}
		merged = append(merged, o.questions...)
	}
	return merged
}

func (e *Engine) do(ctx context.Context, c call) outcome {
	callCtx, cancel := e.withCallTimeout(ctx)
	defer cancel()

	start := time.Now()
	var raw string
	var err error
	if c.file != nil {
		raw, err = e.llm.GenerateFromFile(callCtx, c.prompt, *c.file)
	} else {
		raw, err = e.llm.Generate(callCtx, c.prompt, c.media)
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordLLMCall("questions", metrics.OutcomeTransient, elapsed)
		return outcome{err: &TransientGenerationError{Chunk: c.chunk, Err: err}}
	}

	batch, err := repair.ParseOne(raw)
	if err != nil {
		metrics.RecordLLMCall("questions", metrics.OutcomeMalformed, elapsed)
		return outcome{err: err}
	}
	metrics.RecordLLMCall("questions", metrics.OutcomeOK, elapsed)
	return outcome{questions: batch.Questions}
}

func (e *Engine) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

// accept drops questions that break the Question invariants and, when
// enabled, exact repeats of questions already collected by this run.
func (r *run) accept(questions []models.Question) []models.Question {
	out := questions[:0]
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			r.log.Debug("Dropping invalid question", "error", err)
			continue
		}
		if r.engine.dedup {
			key := normalizeQuestion(q.Question)
			if _, dup := r.seen[key]; dup {
				r.log.Debug("Dropping duplicate question", "question", repair.Sample(q.Question, 80))
				continue
			}
			r.seen[key] = struct{}{}
		}
		out = append(out, q)
	}
	return out
}

func normalizeQuestion(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
