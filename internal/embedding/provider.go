// Package embedding provides the boundary to embedding generation: a Provider
// turns ordered texts into equal-length ordered fixed-dimension vectors.
// The index core depends only on this contract and never implements a model.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding marks embedding failures: provider errors, a response length
// that does not match the input length, or inconsistent dimensionality.
// Mutations aborted by an ErrEmbedding leave the index unchanged.
var ErrEmbedding = errors.New("embedding error")

// Provider produces vector embeddings for text. Implementations must return
// one vector per input text, all of the same dimensionality, pre-normalized
// to unit length (the index scores by inner product and never renormalizes).
// Retry and backoff are the provider's responsibility, not the caller's.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}
