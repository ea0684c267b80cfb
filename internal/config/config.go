package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"learnhub/internal/models"
)

// Config holds every environment driven setting of the server.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	LLMProvider      string  `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey     string  `env:"GEMINI_API_KEY"`
	GeminiModel      string  `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiEmbedModel string  `env:"GEMINI_EMBED_MODEL" envDefault:"text-embedding-004"`
	GeminiRPS        float64 `env:"GEMINI_RPS" envDefault:"5"`
	GeminiBurst      int     `env:"GEMINI_BURST" envDefault:"10"`
	OpenAIAPIKey     string  `env:"OPENAI_API_KEY"`
	OpenAIModel      string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIEmbedModel string  `env:"OPENAI_EMBED_MODEL" envDefault:"text-embedding-3-small"`
	OpenAIBaseURL    string  `env:"OPENAI_BASE_URL"`

	MaxConcurrentTasks int           `env:"MAX_CONCURRENT_TASKS" envDefault:"3"`
	MaxQuestionCount   int           `env:"MAX_QUESTION_COUNT" envDefault:"50"`
	TaskTTL            time.Duration `env:"TASK_TTL" envDefault:"24h"`
	LLMCallTimeout     time.Duration `env:"LLM_CALL_TIMEOUT" envDefault:"3m"`
	DedupQuestions     bool          `env:"DEDUP_QUESTIONS" envDefault:"false"`

	TextChunkSize       int `env:"TEXT_CHUNK_SIZE" envDefault:"100000"`
	TextChunkOverlap    int `env:"TEXT_CHUNK_OVERLAP" envDefault:"5000"`
	ImageChunkSize      int `env:"IMAGE_CHUNK_SIZE" envDefault:"500"`
	ImageChunkOverlap   int `env:"IMAGE_CHUNK_OVERLAP" envDefault:"100"`
	SummaryBatchSize    int `env:"SUMMARY_BATCH_SIZE" envDefault:"10"`
	SummaryBatchOverlap int `env:"SUMMARY_BATCH_OVERLAP" envDefault:"2"`

	RAGDBPath       string `env:"RAG_DB_PATH" envDefault:"./data/rag"`
	RAGChunkSize    int    `env:"RAG_CHUNK_SIZE" envDefault:"1000"`
	RAGChunkOverlap int    `env:"RAG_CHUNK_OVERLAP" envDefault:"200"`
	RAGTopK         int    `env:"RAG_TOP_K" envDefault:"5"`

	UploadDir      string `env:"UPLOAD_DIR"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"67108864"`

	R2AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2PublicURL       string `env:"R2_PUBLIC_URL"`
}

// LoadDotEnv loads a .env file if present. A missing file is not an error.
// The returned bool reports whether a file was loaded.
func LoadDotEnv(paths ...string) (bool, error) {
	if err := godotenv.Load(paths...); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("error loading .env file: %w", err)
	}
	return true, nil
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	var errs []error
	check := func(name string, size, overlap int) {
		if !(size > overlap && overlap > 0) {
			errs = append(errs, fmt.Errorf("%s: chunk size %d must be greater than overlap %d, and overlap must be positive", name, size, overlap))
		}
	}
	check("text chunking", c.TextChunkSize, c.TextChunkOverlap)
	check("image chunking", c.ImageChunkSize, c.ImageChunkOverlap)
	check("summary batching", c.SummaryBatchSize, c.SummaryBatchOverlap)
	check("rag chunking", c.RAGChunkSize, c.RAGChunkOverlap)

	switch strings.ToLower(c.LLMProvider) {
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY environment variable not set"))
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY environment variable not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.MaxConcurrentTasks <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_TASKS must be positive, got %d", c.MaxConcurrentTasks))
	}
	if c.MaxQuestionCount <= 0 || c.MaxQuestionCount > models.MaxQuestionCount {
		errs = append(errs, fmt.Errorf("MAX_QUESTION_COUNT must be between 1 and %d, got %d", models.MaxQuestionCount, c.MaxQuestionCount))
	}
	if c.RAGTopK <= 0 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAGTopK))
	}
	return errors.Join(errs...)
}

// R2Enabled reports whether all R2 settings are present.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2BucketName != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2PublicURL != ""
}
