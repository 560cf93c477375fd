// Package indexer wires chunking, embedding, the index store, and persistence
// into the ingest operations: insert, replace, delete, clear.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/semdex/internal/chunker"
	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/index"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/storage"
)

// Indexer ingests pages into the store. Chunking and the embedding round-trip
// run before the store lock is taken; the in-memory commit is the atomicity
// boundary, and the disk flush happens strictly after a successful commit.
type Indexer struct {
	store    *index.Store
	provider embedding.Provider
	chunker  *chunker.Chunker
	disk     *storage.DiskStore // nil = in-memory only
	logger   *zap.Logger        // optional; when set, logs debug events
	flushMu  sync.Mutex         // serializes disk writes; snapshot taken under it
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output (page indexed, url removed, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// New creates an indexer. disk may be nil for a purely in-memory index.
func New(store *index.Store, provider embedding.Provider, ck *chunker.Chunker, disk *storage.DiskStore, opts ...Option) *Indexer {
	ix := &Indexer{
		store:    store,
		provider: provider,
		chunker:  ck,
		disk:     disk,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Load restores persisted state into the store. A corrupt on-disk index is
// discarded with a warning and the indexer starts empty; only infrastructure
// failures (unreadable directory, bad database) propagate.
func (ix *Indexer) Load() error {
	if ix.disk == nil {
		return nil
	}
	snap, meta, err := ix.disk.Load()
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			if ix.logger != nil {
				ix.logger.Warn("discarding corrupt persisted index", zap.String("dir", ix.disk.Path()), zap.Error(err))
			}
			return nil
		}
		return fmt.Errorf("load index: %w", err)
	}
	if snap == nil {
		return nil
	}
	if err := ix.store.Restore(snap); err != nil {
		if ix.logger != nil {
			ix.logger.Warn("discarding inconsistent persisted index", zap.String("dir", ix.disk.Path()), zap.Error(err))
		}
		return nil
	}
	if ix.logger != nil {
		ix.logger.Info("loaded persisted index",
			zap.Int("rows", len(snap.Records)), zap.String("model", meta.Model))
	}
	if meta.Model != "" && meta.Model != ix.provider.ModelID() && ix.logger != nil {
		// Model pairing is caller policy, not enforced here.
		ix.logger.Warn("persisted index was built with a different model",
			zap.String("index_model", meta.Model), zap.String("provider_model", ix.provider.ModelID()))
	}
	return nil
}

// InsertPage chunks, embeds, and appends the page. Returns the number of rows
// added; 0 with no mutation when the text yields no chunks. An embedding
// failure aborts before anything is committed.
func (ix *Indexer) InsertPage(ctx context.Context, input *models.PageInput) (int, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	chunks := ix.chunker.Chunk(input.Content)
	if len(chunks) == 0 {
		return 0, nil
	}
	vectors, err := ix.provider.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks for %s: %w", input.URL, err)
	}
	if err := ctx.Err(); err != nil {
		// Cancelled before commit: discard the embedding work, store unchanged.
		return 0, err
	}
	added, err := ix.store.AppendDocument(input.URL, input.Title, chunks, vectors, input.Metadata)
	if err != nil {
		return 0, err
	}
	if ix.logger != nil {
		ix.logger.Debug("page indexed", zap.String("url", input.URL), zap.Int("chunks", added))
	}
	return added, ix.flush()
}

// ReplacePage atomically replaces all rows of the page's URL with freshly
// chunked and embedded content. Text that yields no chunks removes the URL.
func (ix *Indexer) ReplacePage(ctx context.Context, input *models.PageInput) (int, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	chunks := ix.chunker.Chunk(input.Content)
	var vectors [][]float32
	if len(chunks) > 0 {
		var err error
		vectors, err = ix.provider.EmbedBatch(ctx, chunks)
		if err != nil {
			return 0, fmt.Errorf("embed chunks for %s: %w", input.URL, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed, added, err := ix.store.ReplaceDocument(input.URL, input.Title, chunks, vectors, input.Metadata)
	if err != nil {
		return 0, err
	}
	if ix.logger != nil {
		ix.logger.Debug("page replaced",
			zap.String("url", input.URL), zap.Int("removed", removed), zap.Int("added", added))
	}
	return added, ix.flush()
}

// DeleteByURL removes all rows of url. Returns the number of rows removed;
// 0 for an unknown url.
func (ix *Indexer) DeleteByURL(url string) (int, error) {
	removed := ix.store.RemoveByURL(url)
	if removed == 0 {
		return 0, nil
	}
	if ix.logger != nil {
		ix.logger.Debug("url removed", zap.String("url", url), zap.Int("rows", removed))
	}
	return removed, ix.flush()
}

// Clear resets the index to empty, in memory and on disk.
func (ix *Indexer) Clear() error {
	ix.store.Clear()
	if ix.disk == nil {
		return nil
	}
	ix.flushMu.Lock()
	defer ix.flushMu.Unlock()
	if err := ix.disk.Reset(); err != nil {
		return fmt.Errorf("reset persisted index: %w", err)
	}
	return nil
}

// Stats reports the index's current state.
func (ix *Indexer) Stats() *models.Stats {
	path := "in-memory"
	if ix.disk != nil {
		path = ix.disk.Path()
	}
	return &models.Stats{
		TotalDocuments:     ix.store.Len(),
		TotalEmbeddings:    ix.store.Len(),
		EmbeddingDimension: ix.store.Dimensions(),
		IndexedURLs:        ix.store.URLCount(),
		Model:              ix.provider.ModelID(),
		ChunkMethod:        ix.chunker.Method().String(),
		StoragePath:        path,
		LastUpdated:        time.Now().UTC(),
	}
}

// flush persists the committed state. A flush failure leaves the in-memory
// store valid and is surfaced to the caller. Flushes are serialized and the
// snapshot is taken under the same lock, so the artifacts on disk always come
// from a single snapshot and a later flush persists every earlier commit.
func (ix *Indexer) flush() error {
	if ix.disk == nil {
		return nil
	}
	ix.flushMu.Lock()
	defer ix.flushMu.Unlock()
	snap := ix.store.Snapshot()
	meta := storage.Meta{
		Model:       ix.provider.ModelID(),
		ChunkMethod: ix.chunker.Method().String(),
		ChunkSize:   ix.chunker.Size(),
	}
	if err := ix.disk.Save(snap, meta); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	return nil
}
