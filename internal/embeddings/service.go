package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds configuration for the embedding service client.
type Config struct {
	// BaseURL is the base URL of the embedding service.
	BaseURL string

	// Model is the embedding model name sent with every request.
	Model string

	// Dimension is the expected embedding dimension. Responses with a
	// different length are rejected as malformed.
	Dimension int

	// Timeout bounds each HTTP round trip. Zero means 30s.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service is an HTTP client for a remote embedding service.
//
// The wire contract is one text per call: request {"model": m, "prompt": p}
// to POST <base>/api/embeddings, response {"embedding": [...]}. Any non-2xx
// status or malformed body surfaces as ErrEmbeddingFailed.
type Service struct {
	config  Config
	client  *http.Client
	metrics *Metrics
}

// NewService creates a new embedding service client.
func NewService(config Config, metrics *Metrics) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if metrics == nil {
		metrics = NewNopMetrics()
	}

	return &Service{
		config:  config,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
	}, nil
}

// embedRequest is the request body for the embeddings endpoint.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the response body for the embeddings endpoint.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed", time.Since(start), 1, genErr)
	}()

	vec, err := s.embed(ctx, text)
	genErr = err
	return vec, err
}

// EmbedBatch generates embeddings for multiple texts. The service accepts
// one prompt per request, so the batch is issued sequentially; the first
// failure aborts the batch.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_batch", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.embed(ctx, text)
		if err != nil {
			genErr = fmt.Errorf("text %d of %d: %w", i+1, len(texts), err)
			return nil, genErr
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int {
	return s.config.Dimension
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	body, err := json.Marshal(embedRequest{Model: s.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}

	if len(decoded.Embedding) != s.config.Dimension {
		return nil, fmt.Errorf("%w: expected dimension %d, got %d",
			ErrEmbeddingFailed, s.config.Dimension, len(decoded.Embedding))
	}

	return decoded.Embedding, nil
}

var _ Provider = (*Service)(nil)
