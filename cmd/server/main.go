package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"learnhub/internal/api"
	"learnhub/internal/api/handlers"
	"learnhub/internal/config"
	"learnhub/internal/db"
	"learnhub/internal/gemini"
	"learnhub/internal/generator"
	"learnhub/internal/logger"
	"learnhub/internal/openai"
	"learnhub/internal/pipeline"
	"learnhub/internal/r2"
	"learnhub/internal/rag"
	"learnhub/internal/tasks"
)

func main() {
	loaded, envErr := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		// No logger yet; fall back to a development one for this message.
		l, _ := logger.New("development")
		l.Fatal("Invalid configuration", "error", err)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	switch {
	case envErr != nil:
		log.Fatal("Error loading .env file", "error", envErr)
	case loaded:
		log.Info(".env file loaded successfully")
	default:
		log.Info(".env file not found, relying on system environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		log.Fatal("Failed to migrate database", "error", err)
	}

	// LLM provider
	var (
		llm      generator.LLM
		embed    func(context.Context, string) ([]float32, error)
		pipeOpts = []pipeline.Option{
			pipeline.WithTempDir(cfg.UploadDir),
			pipeline.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		}
	)
	provider := strings.ToLower(cfg.LLMProvider)
	switch provider {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			BaseURL:    cfg.OpenAIBaseURL,
		})
		if err != nil {
			log.Fatal("Failed to initialize OpenAI client", "error", err)
		}
		llm, embed = client, client.Embed
	default:
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			EmbedModel: cfg.GeminiEmbedModel,
			RPS:        cfg.GeminiRPS,
			Burst:      cfg.GeminiBurst,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize Gemini client", "error", err)
		}
		defer client.Close()
		llm, embed = client, client.Embed
		pipeOpts = append(pipeOpts, pipeline.WithUploader(client))
	}
	log.Info("LLM provider ready", "provider", provider)

	// Generation
	prompts := generator.NewPromptBuilder()
	engine, err := generator.New(llm, generator.Config{
		TextChunkSize:       cfg.TextChunkSize,
		TextChunkOverlap:    cfg.TextChunkOverlap,
		ImageChunkSize:      cfg.ImageChunkSize,
		ImageChunkOverlap:   cfg.ImageChunkOverlap,
		SummaryBatchSize:    cfg.SummaryBatchSize,
		SummaryBatchOverlap: cfg.SummaryBatchOverlap,
		CallTimeout:         cfg.LLMCallTimeout,
		Dedup:               cfg.DedupQuestions,
	}, generator.WithLogger(log.With("component", "engine")), generator.WithPromptBuilder(prompts))
	if err != nil {
		log.Fatal("Invalid generation settings", "error", err)
	}
	pipe := pipeline.New(engine, generator.NewAnnotator(llm, prompts), database, log.With("component", "pipeline"), pipeOpts...)

	// Object storage is optional; without it documents are recorded without a file URL.
	var objects pipeline.ObjectStore
	if cfg.R2Enabled() {
		client, err := r2.NewClient(ctx, r2.Options{
			AccountID:       cfg.R2AccountID,
			Bucket:          cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			PublicURL:       cfg.R2PublicURL,
		}, log.With("component", "r2"))
		if err != nil {
			log.Fatal("Failed to initialize R2 client", "error", err)
		}
		objects = client
	} else {
		log.Warn("R2 is not configured, uploaded files will not be stored")
	}

	// The vector store is optional as well; /rag routes answer 503 without it.
	var (
		index     pipeline.Indexer
		retriever handlers.Retriever
	)
	store, err := rag.Open(rag.Config{
		Path:         cfg.RAGDBPath,
		Compress:     true,
		ChunkSize:    cfg.RAGChunkSize,
		ChunkOverlap: cfg.RAGChunkOverlap,
		TopK:         cfg.RAGTopK,
	}, embed, llm, prompts, log.With("component", "rag"))
	if err != nil {
		log.Error("Failed to open vector store, document Q&A disabled", "error", err, "path", cfg.RAGDBPath)
	} else {
		index, retriever = store, store
		log.Info("Vector store ready", "path", cfg.RAGDBPath, "passages", store.Count())
	}
	library := pipeline.NewLibrary(database, objects, index, log.With("component", "library"))

	runner := tasks.NewRunner(tasks.NewStore(cfg.TaskTTL), cfg.MaxConcurrentTasks, 0, log.With("component", "tasks"))

	handler := handlers.NewHandler(handlers.Deps{
		Store:          database,
		Generator:      pipe,
		Library:        library,
		Retriever:      retriever,
		Tasks:          runner,
		Provider:       provider,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxQuestions:   cfg.MaxQuestionCount,
		Log:            log.With("component", "api"),
	})

	if cfg.AppEnv == "production" || cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = 32 << 20
	api.SetupRoutes(router, handler, cfg.FrontendURL, log.With("component", "http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Warn("Background tasks did not finish", "error", err)
	}
	log.Info("Server exiting")
}
