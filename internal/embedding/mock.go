package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/hyperjump/semdex/pkg/utils"
)

// MockProvider is a deterministic provider for tests. It returns a unit-length
// vector derived from the text hash so the same text always embeds identically.
type MockProvider struct {
	dimensions int
}

// NewMockProvider returns a provider producing deterministic embeddings of the
// given dimensionality (384 when non-positive, matching the default model).
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockProvider{dimensions: dimensions}
}

// Embed returns a deterministic normalized embedding based on the text hash.
func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	emb := make([]float32, p.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(seed)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (p *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (p *MockProvider) Dimensions() int {
	return p.dimensions
}

// ModelID returns a fixed identifier for the mock model.
func (p *MockProvider) ModelID() string {
	return "mock-embedder"
}

// Close is a no-op for MockProvider.
func (p *MockProvider) Close() error {
	return nil
}

// FailingProvider always fails; used to exercise mutation rollback paths.
type FailingProvider struct {
	MockProvider
}

// NewFailingProvider returns a provider whose calls fail with ErrEmbedding.
func NewFailingProvider(dimensions int) *FailingProvider {
	return &FailingProvider{MockProvider: *NewMockProvider(dimensions)}
}

// Embed always fails.
func (p *FailingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("provider unavailable: %w", ErrEmbedding)
}

// EmbedBatch always fails.
func (p *FailingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("provider unavailable: %w", ErrEmbedding)
}
