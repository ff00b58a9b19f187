// Package llm talks to the Ollama HTTP API for text generation and
// embeddings.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"reviewbot/internal/domain"
)

const (
	// Review generation can take minutes on CPU-only hosts.
	generateTimeout = 5 * time.Minute
	embedTimeout    = 2 * time.Minute
)

// Client is an Ollama API client.
type Client struct {
	baseURL    string
	llmModel   string
	embedModel string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an Ollama client for the given base URL and models.
func NewClient(baseURL, llmModel, embedModel string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		llmModel:   llmModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: generateTimeout},
		logger:     logger,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Generate produces a completion for the given system and user prompts.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := generateRequest{
		Model:  c.llmModel,
		System: system,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: 0.1,
			NumCtx:      8192,
		},
	}

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", req, &resp, generateTimeout); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return resp.Response, nil
}

// Embed converts texts to embedding vectors. The result has one vector
// per input, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embedRequest{
		Model: c.embedModel,
		Input: texts,
	}

	var resp embedResponse
	if err := c.post(ctx, "/api/embed", req, &resp, embedTimeout); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// EmbedSingle returns the embedding vector for one text.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (c *Client) post(ctx context.Context, path string, body, out any, timeout time.Duration) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.NewError(domain.ErrCodeUpstream,
			fmt.Sprintf("%s returned status %d: %s", path, resp.StatusCode, snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
