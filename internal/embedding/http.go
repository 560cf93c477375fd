package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/semdex/pkg/utils"
)

const (
	embeddingsEndpoint = "/v1/embeddings"
	maxRetries         = 3
)

// HTTPProvider calls an OpenAI-compatible embeddings endpoint. Requests are
// issued in batches of the configured size; transient failures are retried
// with exponential backoff inside the provider.
type HTTPProvider struct {
	baseURL    string
	model      string
	dimensions int
	batchSize  int
	apiKey     string
	client     *http.Client
	logger     *zap.Logger
}

// HTTPProviderOption configures an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) HTTPProviderOption {
	return func(p *HTTPProvider) { p.logger = l }
}

// WithAPIKey sets a bearer token sent with each request.
func WithAPIKey(key string) HTTPProviderOption {
	return func(p *HTTPProvider) { p.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) { p.client = c }
}

// NewHTTPProvider creates a provider for the embeddings API at baseURL.
// dimensions is the expected vector dimensionality (0 = accept whatever the
// model returns, as long as it is consistent).
func NewHTTPProvider(baseURL, model string, dimensions, batchSize int, opts ...HTTPProviderOption) *HTTPProvider {
	if batchSize <= 0 {
		batchSize = 32
	}
	p := &HTTPProvider{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding for a single text.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in request batches of the configured size and
// returns one unit-normalized vector per text, in input order.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	dims := p.dimensions
	for i, emb := range out {
		if dims == 0 {
			dims = len(emb)
		}
		if len(emb) != dims {
			return nil, fmt.Errorf("inconsistent embedding dimension at %d: got %d, expected %d: %w",
				i, len(emb), dims, ErrEmbedding)
		}
		utils.NormalizeL2(emb)
	}
	return out, nil
}

func (p *HTTPProvider) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			backoff := time.Duration(100*(1<<uint(attempt))) * time.Millisecond
			if p.logger != nil {
				p.logger.Debug("retrying embedding request",
					zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(lastErr))
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err := p.post(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("provider returned %d embeddings for %d texts: %w",
				len(resp.Data), len(texts), ErrEmbedding)
		}
		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		embs := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			embs[i] = d.Embedding
		}
		return embs, nil
	}
	return nil, fmt.Errorf("embedding request failed after %d attempts: %w: %v", maxRetries, ErrEmbedding, lastErr)
}

func (p *HTTPProvider) post(ctx context.Context, body []byte) (*embeddingResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+embeddingsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, utils.Truncate(string(data), 200))
	}
	var out embeddingResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse embeddings response: %w", err)
	}
	return &out, nil
}

// Dimensions returns the configured embedding dimension (0 if auto-detected).
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}

// ModelID returns the configured model identifier.
func (p *HTTPProvider) ModelID() string {
	return p.model
}

// Close is a no-op for HTTPProvider.
func (p *HTTPProvider) Close() error {
	return nil
}
