// Package openai is the OpenAI-compatible LLM provider. Images are sent as
// base64 data URLs; whole-document prompting is not supported.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"learnhub/internal/models"
)

// ErrFileUnsupported is returned by GenerateFromFile. Callers fall back to
// extracting the document text themselves.
var ErrFileUnsupported = errors.New("openai provider does not accept uploaded files")

type Config struct {
	APIKey     string
	Model      string
	EmbedModel string
	BaseURL    string
	RPS        float64
	Burst      int
}

type Client struct {
	client     *goopenai.Client
	model      string
	embedModel goopenai.EmbeddingModel
	limiter    *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	embed := goopenai.SmallEmbedding3
	if cfg.EmbedModel != "" {
		embed = goopenai.EmbeddingModel(cfg.EmbedModel)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	}
	return &Client{
		client:     goopenai.NewClientWithConfig(oc),
		model:      cfg.Model,
		embedModel: embed,
		limiter:    limiter,
	}, nil
}

func (c *Client) Generate(ctx context.Context, prompt string, media []models.Media) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []goopenai.ChatCompletionMessage{userMessage(prompt, media)},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("request openai completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) GenerateFromFile(context.Context, string, models.FileHandle) (string, error) {
	return "", ErrFileUnsupported
}

// Embed matches chromem.EmbeddingFunc.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("request openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

func userMessage(prompt string, media []models.Media) goopenai.ChatCompletionMessage {
	if len(media) == 0 {
		return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt}
	}
	parts := make([]goopenai.ChatMessagePart, 0, len(media)+1)
	parts = append(parts, goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: prompt})
	for _, m := range media {
		parts = append(parts, goopenai.ChatMessagePart{
			Type: goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{
				URL:    dataURL(m),
				Detail: goopenai.ImageURLDetailAuto,
			},
		})
	}
	return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, MultiContent: parts}
}

func dataURL(m models.Media) string {
	return "data:" + m.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
}
