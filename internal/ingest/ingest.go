package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"reviewbot/internal/metrics"
	"reviewbot/internal/store"
)

const batchSize = 32

// Embedder produces embedding vectors for a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter stores embedded guideline chunks.
type ChunkWriter interface {
	InsertBatch(ctx context.Context, items []store.InsertItem) ([]int64, error)
}

// Ingester chunks guideline documents, embeds them, and writes them to
// the vector store.
type Ingester struct {
	embedder Embedder
	writer   ChunkWriter
	logger   *zap.Logger
}

// NewIngester creates an ingester.
func NewIngester(embedder Embedder, writer ChunkWriter, logger *zap.Logger) *Ingester {
	return &Ingester{
		embedder: embedder,
		writer:   writer,
		logger:   logger,
	}
}

// IngestDirectory ingests every markdown file under dir, recursively.
// Returns the total number of chunks stored.
func (i *Ingester) IngestDirectory(ctx context.Context, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("directory not found: %s", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		i.logger.Warn("No markdown files found", zap.String("dir", dir))
		return 0, nil
	}

	i.logger.Info("Found guideline files", zap.String("dir", dir), zap.Int("files", len(files)))

	total := 0
	for _, path := range files {
		count, err := i.IngestFile(ctx, path)
		if err != nil {
			return total, fmt.Errorf("ingest %s: %w", path, err)
		}
		i.logger.Info("Ingested file", zap.String("file", filepath.Base(path)), zap.Int("chunks", count))
		total += count
	}

	i.logger.Info("Ingest completed", zap.Int("total_chunks", total))
	return total, nil
}

// IngestFile chunks and stores a single markdown file.
func (i *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	chunks := ChunkMarkdown(string(data), path)
	if len(chunks) == 0 {
		i.logger.Warn("No chunks produced, skipping", zap.String("file", path))
		return 0, nil
	}

	stored := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Content
		}

		embeddings, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("embed batch: %w", err)
		}
		if len(embeddings) != len(batch) {
			return stored, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(batch))
		}

		items := make([]store.InsertItem, len(batch))
		for j, chunk := range batch {
			items[j] = store.InsertItem{
				Content:    chunk.Content,
				Embedding:  embeddings[j],
				Category:   chunk.Category,
				Source:     chunk.Source,
				ChunkIndex: chunk.ChunkIndex,
			}
		}

		if _, err := i.writer.InsertBatch(ctx, items); err != nil {
			return stored, fmt.Errorf("store batch: %w", err)
		}
		stored += len(items)
	}

	metrics.RecordChunksIngested(stored)
	return stored, nil
}
