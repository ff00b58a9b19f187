// Package store persists guideline chunks and their embeddings in
// Postgres with the pgvector extension.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// GuidelineChunk is one stored guideline section with its similarity
// score when returned from a search.
type GuidelineChunk struct {
	ID         int64   `json:"id"`
	Content    string  `json:"content"`
	Category   string  `json:"category,omitempty"`
	Source     string  `json:"source,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// InsertItem is the input for a single chunk insert.
type InsertItem struct {
	Content    string
	Embedding  []float32
	Category   string
	Source     string
	ChunkIndex int
}

// SearchParams tunes a similarity search.
type SearchParams struct {
	TopK           int
	Category       string
	ScoreThreshold float64
}

// VectorStore is a pgvector-backed guideline store.
type VectorStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a VectorStore on the given pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *VectorStore {
	return &VectorStore{pool: pool, logger: logger}
}

// Insert stores a single guideline chunk and returns its id.
func (s *VectorStore) Insert(ctx context.Context, item InsertItem) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO guidelines (content, category, source, chunk_index, embedding)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5::vector)
		RETURNING id
	`, item.Content, item.Category, item.Source, item.ChunkIndex, VectorLiteral(item.Embedding)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert guideline: %w", err)
	}
	return id, nil
}

// InsertBatch stores multiple chunks in one transaction and returns their
// ids in input order.
func (s *VectorStore) InsertBatch(ctx context.Context, items []InsertItem) ([]int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO guidelines (content, category, source, chunk_index, embedding)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5::vector)
			RETURNING id
		`, item.Content, item.Category, item.Source, item.ChunkIndex, VectorLiteral(item.Embedding)).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert guideline batch item: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch insert: %w", err)
	}
	return ids, nil
}

// Search returns the chunks most similar to the query embedding by cosine
// similarity, highest score first. Cosine distance is 1 - similarity, so
// the score is computed as 1 - (embedding <=> query).
func (s *VectorStore) Search(ctx context.Context, queryEmbedding []float32, params SearchParams) ([]GuidelineChunk, error) {
	if params.TopK <= 0 {
		params.TopK = 5
	}

	literal := VectorLiteral(queryEmbedding)

	var rows pgx.Rows
	var err error
	if params.Category != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, content, COALESCE(category, ''), COALESCE(source, ''), chunk_index,
			       1 - (embedding <=> $1::vector) AS score
			FROM guidelines
			WHERE category = $2
			ORDER BY embedding <=> $1::vector
			LIMIT $3
		`, literal, params.Category, params.TopK)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, content, COALESCE(category, ''), COALESCE(source, ''), chunk_index,
			       1 - (embedding <=> $1::vector) AS score
			FROM guidelines
			ORDER BY embedding <=> $1::vector
			LIMIT $2
		`, literal, params.TopK)
	}
	if err != nil {
		return nil, fmt.Errorf("search guidelines: %w", err)
	}
	defer rows.Close()

	var results []GuidelineChunk
	for rows.Next() {
		var chunk GuidelineChunk
		if err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.Category, &chunk.Source, &chunk.ChunkIndex, &chunk.Score); err != nil {
			return nil, fmt.Errorf("scan guideline row: %w", err)
		}
		if chunk.Score >= params.ScoreThreshold {
			results = append(results, chunk)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guideline rows: %w", err)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *VectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM guidelines`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count guidelines: %w", err)
	}
	return count, nil
}

// DeleteAll removes every stored chunk and returns how many were deleted.
func (s *VectorStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM guidelines`)
	if err != nil {
		return 0, fmt.Errorf("delete guidelines: %w", err)
	}
	return tag.RowsAffected(), nil
}

// VectorLiteral renders an embedding as a pgvector text literal,
// e.g. [0.1,0.2,0.3].
func VectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
