package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"policychat-backend/config"
	"policychat-backend/handlers"
	"policychat-backend/llm"
	"policychat-backend/service"
	"policychat-backend/session"
	"policychat-backend/splitter"
	"policychat-backend/vectorindex"
)

func main() {
	// Load .env from the current directory first, then the project root
	// (relative to cmd/server/).
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Warn("No .env file found, using environment variables")
		}
	}

	// All cleanup runs through run's defers; os.Exit must stay out here so
	// session scratch directories are torn down on every exit path.
	if err := run(); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	embedder, generator, cleanupLLM, err := initLLM(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM backend: %w", err)
	}
	defer cleanupLLM()

	policyStore, cleanupStore, err := initPolicyStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize policy index: %w", err)
	}
	defer cleanupStore()

	policyRetriever := service.NewRetriever(policyStore, embedder, cfg.PolicyTopK, cfg.PolicyMinScore)
	split := splitter.NewRecursiveCharacter(cfg.ChunkSize, cfg.ChunkOverlap)
	indexer := service.NewDocumentIndexer(embedder, split, cfg.DocumentTopK, cfg.DocumentMinScore)

	sessions := session.NewManager(cfg.AllowedExtensions)
	defer func() {
		if err := sessions.TeardownAll(); err != nil {
			log.Warn("Session teardown left artifacts behind", "error", err)
		}
	}()

	chatHandler := handlers.NewChatHandler(sessions, indexer, policyRetriever, generator, cfg.IndexTimeout, cfg.QueryTimeout)

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/upload", chatHandler.Upload)
		api.POST("/query", chatHandler.Query)
		api.POST("/clear-history", chatHandler.ClearHistory)
		api.POST("/clear-storage", chatHandler.ClearStorage)
		api.GET("/session", chatHandler.GetSession)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	log.Info("Server starting", "port", cfg.Port, "llm_backend", cfg.LLMBackend, "vector_backend", cfg.VectorBackend)
	return serve(ctx, srv)
}

// serve runs srv until it fails or ctx is cancelled, then drains in-flight
// requests. A clean shutdown returns nil so run's deferred cleanup is the
// only teardown path.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// initLLM builds the embedder and generator for the configured backend. The
// returned cleanup closes any underlying client.
func initLLM(cfg *config.Config) (llm.Embedder, llm.Generator, func(), error) {
	switch cfg.LLMBackend {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Warn("GEMINI_API_KEY is not set; Gemini calls will fail")
		}
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		gc := llm.NewGeminiClient(client, llm.GeminiConfig{
			EmbeddingModel:  cfg.GeminiEmbeddingModel,
			GenerationModel: cfg.GeminiGenerationModel,
			Temperature:     float32(cfg.Temperature),
		})
		return gc, gc, func() { client.Close() }, nil

	case "ollama":
		oc := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:         cfg.OllamaURL,
			EmbeddingModel:  cfg.OllamaEmbeddingModel,
			GenerationModel: cfg.OllamaGenerationModel,
			Temperature:     cfg.Temperature,
		})
		return oc, oc, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown LLM backend: %s", cfg.LLMBackend)
	}
}

// initPolicyStore connects to the configured policy index backend. The
// returned cleanup releases the connection pool where one exists.
func initPolicyStore(cfg *config.Config) (vectorindex.Store, func(), error) {
	switch cfg.VectorBackend {
	case "qdrant":
		store := vectorindex.NewQdrant(vectorindex.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.PolicyCollection,
		})
		return store, func() {}, nil

	case "pgvector":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Postgres pool: %w", err)
		}
		if err := pool.Ping(context.Background()); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping Postgres: %w", err)
		}
		store, err := vectorindex.NewPgvector(pool, cfg.PolicyCollection)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() { pool.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown vector backend: %s", cfg.VectorBackend)
	}
}
