// Package pipeline runs one generation task end to end: quota check,
// content extraction, question generation, annotation and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"learnhub/internal/db"
	"learnhub/internal/extract"
	"learnhub/internal/logger"
	"learnhub/internal/models"
	"learnhub/internal/youtube"
)

// Progress milestones reported to the task store.
const (
	StepExtracting = "extracting"
	StepUploading  = "uploading"
	StepGenerating = "generating"
	StepAnnotating = "annotating"
	StepSaving     = "saving"
	StepIndexing   = "indexing"
)

// ErrNoQuestions is returned when generation produced nothing to save.
var ErrNoQuestions = errors.New("no questions generated")

// ErrFileModeUnavailable is returned for file mode without an upload-capable
// provider.
var ErrFileModeUnavailable = errors.New("file mode requires an LLM provider that accepts uploads")

type Engine interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.QuestionBatch, error)
}

type Annotator interface {
	Title(ctx context.Context, language string, batch *models.QuestionBatch) string
	Categorize(ctx context.Context, batch *models.QuestionBatch, known []string) ([]string, error)
}

// QuizStore is the part of the database a generation task writes to.
type QuizStore interface {
	CheckQuizQuota(ctx context.Context, userID string) (*models.Quota, error)
	ListCategories(ctx context.Context) ([]string, error)
	SaveQuiz(ctx context.Context, arg db.CreateQuizParams) (*models.Quiz, error)
}

// FileUploader hands a document to the LLM provider for file mode.
type FileUploader interface {
	Upload(ctx context.Context, path, mimeType string) (models.FileHandle, error)
	Delete(ctx context.Context, file models.FileHandle)
}

type TranscriptFetcher interface {
	Fetch(ctx context.Context, link, lang string) (*youtube.Transcript, error)
}

// PDFMode selects how a PDF reaches the LLM.
type PDFMode string

const (
	// PDFModeText sends the extracted text layer.
	PDFModeText PDFMode = "text"
	// PDFModeFile uploads the PDF and lets the model read it.
	PDFModeFile PDFMode = "file"
)

// ParsePDFMode accepts "text", "file" or empty (text).
func ParsePDFMode(s string) (PDFMode, error) {
	switch PDFMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PDFModeText:
		return PDFModeText, nil
	case PDFModeFile:
		return PDFModeFile, nil
	}
	return "", fmt.Errorf("invalid mode %q: must be text or file", s)
}

// Options are the per-request settings of a generation task.
type Options struct {
	UserID     string
	IsPublic   bool
	Count      int
	Language   string
	Difficulty models.Difficulty
	PDFMode    PDFMode
}

// Outcome is stored as the result of a completed generation task.
type Outcome struct {
	Quiz      *models.Quiz `json:"quiz"`
	Requested int          `json:"requested"`
	Generated int          `json:"generated"`
	Degraded  bool         `json:"degraded"`
}

// Pipeline is shared by every generation task.
type Pipeline struct {
	engine      Engine
	annotator   Annotator
	store       QuizStore
	uploader    FileUploader
	transcripts TranscriptFetcher
	http        *http.Client
	tempDir     string
	log         *logger.Logger
}

type Option func(*Pipeline)

// WithUploader enables PDF file mode.
func WithUploader(u FileUploader) Option {
	return func(p *Pipeline) { p.uploader = u }
}

func WithTranscripts(t TranscriptFetcher) Option {
	return func(p *Pipeline) { p.transcripts = t }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.http = c }
}

// WithTempDir sets where uploads are staged; empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(p *Pipeline) { p.tempDir = dir }
}

func New(engine Engine, annotator Annotator, store QuizStore, log *logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:    engine,
		annotator: annotator,
		store:     store,
		http:      http.DefaultClient,
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.transcripts == nil {
		p.transcripts = youtube.New(p.http, log)
	}
	return p
}

// FromText generates a quiz from raw text.
func (p *Pipeline) FromText(ctx context.Context, opts Options, text string, progress func(string)) (*Outcome, error) {
	if err := p.admit(ctx, opts); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, extract.ErrNoText
	}
	if err := extract.CheckWords(text); err != nil {
		return nil, err
	}
	return p.generate(ctx, opts, models.TextSource(text), progress)
}

// FromLink generates a quiz from a YouTube transcript or a web article.
func (p *Pipeline) FromLink(ctx context.Context, opts Options, link string, progress func(string)) (*Outcome, error) {
	if err := p.admit(ctx, opts); err != nil {
		return nil, err
	}
	progress(StepExtracting)

	var text string
	if youtube.IsYouTubeLink(link) {
		tr, err := p.transcripts.Fetch(ctx, link, languageCode(opts.Language))
		if err != nil {
			return nil, fmt.Errorf("fetch transcript: %w", err)
		}
		text = tr.Text
	} else {
		page, err := extract.WebPage(ctx, p.http, link)
		if err != nil {
			return nil, err
		}
		text = page.Text
	}
	if err := extract.CheckWords(text); err != nil {
		return nil, err
	}
	return p.generate(ctx, opts, models.TextSource(text), progress)
}

// FromFile generates a quiz from an uploaded PDF, DOCX, text or image file.
func (p *Pipeline) FromFile(ctx context.Context, opts Options, filename string, data []byte, progress func(string)) (*Outcome, error) {
	if err := p.admit(ctx, opts); err != nil {
		return nil, err
	}
	progress(StepExtracting)

	switch extract.KindOf(filename) {
	case extract.KindPDF:
		if opts.PDFMode == PDFModeFile {
			return p.fromUploadedPDF(ctx, opts, filename, data, progress)
		}
		text, err := extract.PDFText(data)
		if err != nil {
			return nil, err
		}
		return p.generate(ctx, opts, models.TextSource(text), progress)
	case extract.KindImage:
		img, err := extract.Image(filename, data)
		if err != nil {
			return nil, err
		}
		return p.generate(ctx, opts, models.ImageSource([]models.Media{img}), progress)
	default:
		text, err := DocumentText(filename, data)
		if err != nil {
			return nil, err
		}
		return p.generate(ctx, opts, models.TextSource(text), progress)
	}
}

func (p *Pipeline) fromUploadedPDF(ctx context.Context, opts Options, filename string, data []byte, progress func(string)) (*Outcome, error) {
	if p.uploader == nil {
		return nil, ErrFileModeUnavailable
	}
	pages, err := extract.PDFPageCount(data)
	if err != nil {
		return nil, err
	}
	if pages > extract.MaxPages {
		return nil, &extract.LimitError{Unit: "pages", Got: pages, Max: extract.MaxPages}
	}

	path, err := p.stage(filename, data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	progress(StepUploading)
	handle, err := p.uploader.Upload(ctx, path, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	defer p.uploader.Delete(context.WithoutCancel(ctx), handle)

	return p.generate(ctx, opts, models.FileSource(handle), progress)
}

// stage writes data to a temporary file for providers that upload from disk.
func (p *Pipeline) stage(filename string, data []byte) (string, error) {
	f, err := os.CreateTemp(p.tempDir, "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}

// admit fails fast when the user cannot create another quiz.
func (p *Pipeline) admit(ctx context.Context, opts Options) error {
	if opts.UserID == "" {
		return errors.New("user_id is required")
	}
	_, err := p.store.CheckQuizQuota(ctx, opts.UserID)
	return err
}

func (p *Pipeline) generate(ctx context.Context, opts Options, source models.ContentSource, progress func(string)) (*Outcome, error) {
	language := opts.Language
	if language == "" {
		language = "English"
	}
	req := models.GenerationRequest{
		Source:     source,
		Count:      opts.Count,
		Language:   language,
		Difficulty: opts.Difficulty,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	progress(StepGenerating)
	batch, err := p.engine.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(batch.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	progress(StepAnnotating)
	title := p.annotator.Title(ctx, language, batch)
	categories := []string{}
	known, err := p.store.ListCategories(ctx)
	if err != nil {
		p.log.Warn("Failed to list categories", "error", err)
	} else if cats, err := p.annotator.Categorize(ctx, batch, known); err != nil {
		p.log.Warn("Failed to categorize quiz", "error", err)
	} else {
		categories = cats
	}

	progress(StepSaving)
	quiz, err := p.store.SaveQuiz(ctx, db.CreateQuizParams{
		UserID:     opts.UserID,
		Title:      title,
		IsPublic:   opts.IsPublic,
		Difficulty: req.Difficulty,
		Language:   language,
		Categories: categories,
		Questions:  batch.Questions,
	})
	if err != nil {
		return nil, fmt.Errorf("save quiz: %w", err)
	}

	p.log.Info("Quiz generated", "quiz_id", quiz.ID, "user_id", opts.UserID,
		"source", source.Kind, "requested", batch.Requested, "generated", len(batch.Questions))
	return &Outcome{
		Quiz:      quiz,
		Requested: batch.Requested,
		Generated: len(batch.Questions),
		Degraded:  batch.Degraded,
	}, nil
}

// DocumentText extracts the text of a PDF, DOCX or plain text upload.
func DocumentText(filename string, data []byte) (string, error) {
	switch extract.KindOf(filename) {
	case extract.KindPDF:
		return extract.PDFText(data)
	case extract.KindDOCX:
		return extract.DOCXText(data)
	case extract.KindText:
		return extract.PlainText(data)
	}
	return "", &extract.UnsupportedTypeError{Ext: strings.ToLower(filepath.Ext(filename))}
}

// languageCode maps a language name to the caption language code tried
// first; unknown names are passed through.
func languageCode(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "english":
		return "en"
	case "french":
		return "fr"
	case "spanish":
		return "es"
	case "german":
		return "de"
	case "italian":
		return "it"
	case "portuguese":
		return "pt"
	case "vietnamese":
		return "vi"
	case "japanese":
		return "ja"
	case "chinese":
		return "zh"
	}
	return language
}
