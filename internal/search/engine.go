// Package search scores the index against query embeddings and applies
// metadata filters to the ranked rows.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/index"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/pkg/utils"
)

// Engine answers similarity queries against the store. It never mutates the
// store; a provider failure simply fails the query.
type Engine struct {
	store    *index.Store
	provider embedding.Provider
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over the given store and provider.
func NewEngine(store *index.Store, provider embedding.Provider, opts ...Option) *Engine {
	e := &Engine{store: store, provider: provider}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search embeds the query, scores every row by inner product, and returns up
// to TopK results at or above the threshold, best first. Rows with equal
// scores rank by insertion order, so repeated searches return identical
// orderings. Rows failing a filter are skipped without counting toward TopK.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}
	keep, err := buildFilter(query.Filters)
	if err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Results: []*models.SearchResult{},
		Query:   query.Query,
	}
	snap := e.store.Snapshot()
	if len(snap.Records) == 0 {
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}

	queryVec, err := e.provider.Embed(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVec) != snap.Dims {
		return nil, fmt.Errorf("query embedding has dimension %d, index has %d: %w",
			len(queryVec), snap.Dims, embedding.ErrEmbedding)
	}

	threshold := *query.Threshold
	ranked := rankRows(snap, queryVec)
	for _, r := range ranked {
		// Scores are non-increasing: nothing past this point can pass.
		if r.score < threshold {
			break
		}
		rec := snap.Records[r.row]
		if !keep(rec) {
			continue
		}
		response.Results = append(response.Results, &models.SearchResult{
			Content:  rec.Content,
			URL:      rec.URL,
			Title:    rec.Title,
			Score:    r.score,
			Metadata: rec.Metadata,
			ChunkID:  rec.ChunkID,
		})
		if len(response.Results) >= query.TopK {
			break
		}
	}

	response.Total = len(response.Results)
	response.QueryTime = time.Since(startTime).Milliseconds()
	if e.logger != nil {
		e.logger.Debug("search complete",
			zap.String("query", utils.Truncate(query.Query, 80)),
			zap.Int("results", response.Total),
			zap.Int64("ms", response.QueryTime))
	}
	return response, nil
}

// FindSimilar is Search specialized for near-duplicate detection: the
// reference text is the query, the default threshold is stricter, and at most
// one URL filter applies.
func (e *Engine) FindSimilar(ctx context.Context, query *models.SimilarQuery) (*models.SearchResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	var filters map[string]string
	if query.URLFilter != "" {
		filters = map[string]string{"url": query.URLFilter}
	}
	return e.Search(ctx, &models.SearchQuery{
		Query:     query.Reference,
		TopK:      query.TopK,
		Threshold: query.Threshold,
		Filters:   filters,
	})
}

type rankedRow struct {
	row   int
	score float64
}

// rankRows scores every row and sorts by score descending, breaking ties by
// smaller row index.
func rankRows(snap *index.Snapshot, queryVec []float32) []rankedRow {
	ranked := make([]rankedRow, len(snap.Vectors))
	for row, vec := range snap.Vectors {
		ranked[row] = rankedRow{row: row, score: utils.InnerProduct(queryVec, vec)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].row < ranked[j].row
	})
	return ranked
}
