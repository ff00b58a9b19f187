package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"reviewbot/internal/db"
	"reviewbot/internal/infra"
	"reviewbot/internal/ingest"
	"reviewbot/internal/llm"
	"reviewbot/internal/store"
)

func main() {
	source := flag.String("source", "", "directory containing guideline markdown files")
	reset := flag.Bool("reset", false, "delete existing guidelines before ingesting")
	flag.Parse()

	if *source == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest --source <dir> [--reset]")
		os.Exit(2)
	}

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

	ctx := context.Background()

	if err := db.RunMigrations(config.Postgres.DSN, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, config.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	vectorStore := store.New(pool, logger)

	if *reset {
		deleted, err := vectorStore.DeleteAll(ctx)
		if err != nil {
			logger.Fatal("Failed to reset guidelines", zap.Error(err))
		}
		logger.Info("Existing guidelines deleted", zap.Int64("deleted", deleted))
	}

	llmClient := llm.NewClient(config.Ollama.BaseURL, config.Ollama.LLMModel, config.Ollama.EmbedModel, logger)
	ingester := ingest.NewIngester(llmClient, vectorStore, logger)

	total, err := ingester.IngestDirectory(ctx, *source)
	if err != nil {
		logger.Fatal("Ingest failed", zap.Error(err))
	}

	count, err := vectorStore.Count(ctx)
	if err != nil {
		logger.Warn("Failed to count stored guidelines", zap.Error(err))
	}

	logger.Info("Ingest finished",
		zap.Int("chunks_stored", total),
		zap.Int64("total_in_store", count),
	)
}
