// Package retriever finds guideline chunks relevant to a piece of code,
// the retrieval half of the review pipeline.
package retriever

import (
	"context"
	"fmt"

	"reviewbot/internal/store"
)

// Embedder converts a query text into an embedding vector.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search over stored guidelines.
type Searcher interface {
	Search(ctx context.Context, queryEmbedding []float32, params store.SearchParams) ([]store.GuidelineChunk, error)
}

// Options override the retriever defaults per search.
type Options struct {
	TopK           int
	Category       string
	ScoreThreshold float64
	// ThresholdSet distinguishes an explicit 0 threshold from "use default".
	ThresholdSet bool
}

// Retriever embeds queries and searches the guideline store.
type Retriever struct {
	embedder  Embedder
	searcher  Searcher
	topK      int
	threshold float64
}

// New creates a Retriever with the given defaults for top-k and score
// threshold.
func New(embedder Embedder, searcher Searcher, topK int, threshold float64) *Retriever {
	return &Retriever{
		embedder:  embedder,
		searcher:  searcher,
		topK:      topK,
		threshold: threshold,
	}
}

// Search embeds the query text and returns the most relevant guideline
// chunks.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) ([]store.GuidelineChunk, error) {
	embedding, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	params := store.SearchParams{
		TopK:           r.topK,
		Category:       opts.Category,
		ScoreThreshold: r.threshold,
	}
	if opts.TopK > 0 {
		params.TopK = opts.TopK
	}
	if opts.ThresholdSet {
		params.ScoreThreshold = opts.ScoreThreshold
	}

	return r.searcher.Search(ctx, embedding, params)
}
