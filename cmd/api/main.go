package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"reviewbot/internal/api"
	"reviewbot/internal/db"
	"reviewbot/internal/gitlab"
	"reviewbot/internal/infra"
	"reviewbot/internal/jobs"
	"reviewbot/internal/llm"
	"reviewbot/internal/retriever"
	"reviewbot/internal/review"
	"reviewbot/internal/store"
	"reviewbot/internal/tasks"
	"reviewbot/pkg/graceful"
)

func main() {
	config, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := infra.NewLogger(config.LogLevel, config.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("server_addr", config.Server.Addr),
		zap.String("server_port", config.Server.Port),
		zap.String("llm_model", config.Ollama.LLMModel),
		zap.String("embed_model", config.Ollama.EmbedModel),
		zap.Bool("queue_enabled", config.QueueEnabled()),
	)

	ctx := context.Background()

	if err := db.RunMigrations(config.Postgres.DSN, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, config.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	llmClient := llm.NewClient(config.Ollama.BaseURL, config.Ollama.LLMModel, config.Ollama.EmbedModel, logger)
	vectorStore := store.New(pool, logger)
	guidelineRetriever := retriever.New(llmClient, vectorStore, config.Review.RetrieverTopK, config.Review.ScoreThreshold)
	reviewer := review.NewReviewer(guidelineRetriever, llmClient, logger)
	gitlabClient := gitlab.NewClient(config.GitLab.URL, config.GitLab.Token, logger)
	jobRepo := jobs.NewRepo(pool, logger)

	runner := tasks.NewTaskHandler(logger, gitlabClient, reviewer, gitlabClient, jobRepo, config.Review.MaxDiffLines)

	var enqueuer api.TaskEnqueuer
	var taskClient *tasks.TaskClient
	if config.QueueEnabled() {
		taskClient = tasks.NewTaskClient(config.Redis.Addr, logger)
		enqueuer = taskClient
	} else {
		logger.Info("Redis not configured, reviews run in-process")
	}

	handlers := api.NewHandlers(logger, config, enqueuer, runner, jobRepo)
	server := &http.Server{
		Addr:    config.ListenAddr(),
		Handler: api.Router(logger, handlers),
	}

	go func() {
		logger.Info("Starting API server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	shutdown := graceful.NewShutdownHandler(logger, 30*time.Second)
	shutdown.Register(server)
	if taskClient != nil {
		shutdown.Register(graceful.ShutdownFunc(func(ctx context.Context) error {
			return taskClient.Close()
		}))
	}
	shutdown.WaitForShutdown()

	logger.Info("Server exited")
}
