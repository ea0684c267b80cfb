// Package gemini adapts the Google Gemini API to the generation engine and
// the document store: text and multimodal generation, the File API for whole
// documents, and embeddings.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"learnhub/internal/logger"
	"learnhub/internal/models"
)

// Sampling parameters shared by every generation call.
const (
	temperature     = 0.2
	topK            = 40
	topP            = 0.95
	maxOutputTokens = 8192
)

// filePollInterval is how often an uploaded file is checked until it becomes
// usable.
const filePollInterval = 2 * time.Second

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini returned no content")

// Config selects models and the client side request rate.
type Config struct {
	APIKey     string
	Model      string
	EmbedModel string
	RPS        float64
	Burst      int
}

// Client wraps the Gemini client. It is safe for concurrent use: model
// settings are fixed at construction.
type Client struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	embed   *genai.EmbeddingModel
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(temperature)
	model.SetTopK(topK)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(maxOutputTokens)

	return &Client{
		client:  client,
		model:   model,
		embed:   client.EmbeddingModel(cfg.EmbedModel),
		limiter: newLimiter(cfg.RPS, cfg.Burst),
		log:     log.With("component", "gemini", "model", cfg.Model),
	}, nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Close closes the Gemini client
func (c *Client) Close() error {
	return c.client.Close()
}

// Generate sends prompt followed by any inline media and returns the text of
// the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string, media []models.Media) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.model.GenerateContent(ctx, inlineParts(prompt, media)...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

// GenerateFromFile prompts against a document previously sent with Upload.
func (c *Client) GenerateFromFile(ctx context.Context, prompt string, file models.FileHandle) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.FileData{MIMEType: file.MIMEType, URI: file.URI},
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from %s: %w", file.Name, err)
	}
	return responseText(resp)
}

// Upload sends a local file to the File API and waits until it can be
// referenced in prompts.
func (c *Client) Upload(ctx context.Context, path, mimeType string) (models.FileHandle, error) {
	opts := &genai.UploadFileOptions{
		DisplayName: filepath.Base(path),
		MIMEType:    mimeType,
	}
	f, err := c.client.UploadFileFromPath(ctx, path, opts)
	if err != nil {
		return models.FileHandle{}, fmt.Errorf("failed to upload %s: %w", filepath.Base(path), err)
	}
	c.log.Debug("Uploaded file", "name", f.Name, "uri", f.URI)

	f, err = waitActive(ctx, f, c.client.GetFile, filePollInterval)
	if err != nil {
		c.Delete(context.WithoutCancel(ctx), models.FileHandle{Name: f.Name})
		return models.FileHandle{}, err
	}
	return models.FileHandle{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}, nil
}

// Delete removes an uploaded file. Failures are logged only: the File API
// expires uploads on its own.
func (c *Client) Delete(ctx context.Context, file models.FileHandle) {
	if file.Name == "" {
		return
	}
	if err := c.client.DeleteFile(ctx, file.Name); err != nil {
		c.log.Warn("Failed to delete uploaded file", "name", file.Name, "error", err)
	}
}

// Embed returns the embedding of text. Its signature matches
// chromem.EmbeddingFunc.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.embed.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini returned an empty embedding")
	}
	return res.Embedding.Values, nil
}

func inlineParts(prompt string, media []models.Media) []genai.Part {
	parts := make([]genai.Part, 0, len(media)+1)
	parts = append(parts, genai.Text(prompt))
	for _, m := range media {
		parts = append(parts, genai.Blob{MIMEType: m.MIMEType, Data: m.Data})
	}
	return parts
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

type getFileFunc func(ctx context.Context, name string) (*genai.File, error)

func waitActive(ctx context.Context, f *genai.File, get getFileFunc, every time.Duration) (*genai.File, error) {
	for {
		switch f.State {
		case genai.FileStateActive:
			return f, nil
		case genai.FileStateFailed:
			return f, fmt.Errorf("file %s failed processing", f.Name)
		}

		select {
		case <-ctx.Done():
			return f, ctx.Err()
		case <-time.After(every):
		}

		next, err := get(ctx, f.Name)
		if err != nil {
			return f, fmt.Errorf("failed to get file %s: %w", f.Name, err)
		}
		f = next
	}
}
