package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"reviewbot/internal/db"
	"reviewbot/internal/gitlab"
	"reviewbot/internal/infra"
	"reviewbot/internal/jobs"
	"reviewbot/internal/llm"
	"reviewbot/internal/metrics"
	"reviewbot/internal/retriever"
	"reviewbot/internal/review"
	"reviewbot/internal/store"
	"reviewbot/internal/tasks"
	"reviewbot/internal/workers"
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

	if !config.QueueEnabled() {
		logger.Fatal("Redis address is required to run the review worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	handler := tasks.NewTaskHandler(logger, gitlabClient, reviewer, gitlabClient, jobRepo, config.Review.MaxDiffLines)

	server := workers.NewAsynqServer(config.Redis.Addr, config.WorkerConcurrency, logger, handler)
	server.RegisterHandlers()

	// Review counters are recorded in this process, so the worker serves
	// its own scrape endpoint.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    config.WorkerMetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("Starting worker metrics server", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Worker metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting review worker")
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			logger.Fatal("Review worker failed", zap.Error(err))
		}
	}()

	shutdown := graceful.NewShutdownHandler(logger, 30*time.Second)
	shutdown.Register(metricsServer)
	shutdown.Register(graceful.ShutdownFunc(func(ctx context.Context) error {
		cancel()
		server.Stop()
		return nil
	}))
	shutdown.WaitForShutdown()

	logger.Info("Review worker exited")
}
