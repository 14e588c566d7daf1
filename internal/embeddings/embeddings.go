// Package embeddings provides embedding generation via a remote embedding
// service, plus a fail-soft wrapper that degrades to zero vectors.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. All implementations produce vectors
// of a fixed dimension.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int
}

// ZeroVector returns the zero vector of the given dimension. Zero vectors
// are the fail-soft degraded value: their distance to every stored vector
// is high and consistent, so they never rank as a spurious best match.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// IsZero reports whether every component of the vector is zero.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
