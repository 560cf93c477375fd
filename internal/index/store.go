// Package index owns the in-memory embedding index: the parallel record and
// vector rows plus the two secondary maps, with all invariants enforced on
// every mutation.
package index

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/models"
)

// Store holds one chunk record and one embedding vector per row, with a
// chunk-id -> row map and a url -> rows map kept consistent with the rows.
//
// Invariants after every mutation:
//   - len(vectors) == len(records)
//   - chunkRows is a bijection between present chunk ids and [0, len(records))
//   - urlRows partitions [0, len(records)): every row is in exactly one bucket
//   - embedding dimensionality is fixed by the first inserted row
//
// Mutations run under the write lock; readers take snapshots under the read
// lock and never observe an intermediate state of a rebuild.
type Store struct {
	mu        sync.RWMutex
	records   []*models.ChunkRecord
	vectors   [][]float32
	dims      int
	chunkRows map[string]int
	urlRows   map[string][]int
	nextSeq   uint64 // monotonic; chunk ids are never reused, even after deletion
}

// New creates an empty store.
func New() *Store {
	return &Store{
		chunkRows: make(map[string]int),
		urlRows:   make(map[string][]int),
	}
}

// Len returns the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dimensions returns the established embedding dimension (0 while empty).
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// URLCount returns the number of distinct indexed URLs.
func (s *Store) URLCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urlRows)
}

// AppendDocument adds one row per chunk for url, assigning fresh chunk ids and
// updating both maps. The operation is atomic: on any validation failure
// nothing is committed. Returns the number of rows added.
func (s *Store) AppendDocument(url, title string, chunks []string, vectors [][]float32, metadata map[string]interface{}) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validateVectors(chunks, vectors); err != nil {
		return 0, err
	}
	s.appendLocked(url, title, chunks, vectors, metadata)
	return len(chunks), nil
}

// ReplaceDocument removes all rows of url and appends the new chunks as a
// single atomic mutation; the intermediate url-absent state is never visible
// to readers. Vectors are validated before anything is removed, so a
// dimension error leaves the store unchanged.
func (s *Store) ReplaceDocument(url, title string, chunks []string, vectors [][]float32, metadata map[string]interface{}) (removed, added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(chunks) > 0 {
		if err := s.validateVectors(chunks, vectors); err != nil {
			return 0, 0, err
		}
	}
	removed = s.removeURLLocked(url)
	if len(chunks) > 0 {
		s.appendLocked(url, title, chunks, vectors, metadata)
	}
	return removed, len(chunks), nil
}

// RemoveByURL removes all rows belonging to url, compacting rows and
// rebuilding both maps in one pass. Returns the number of rows removed;
// 0 if the url is not indexed.
func (s *Store) RemoveByURL(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeURLLocked(url)
}

// Clear resets the store to empty. The chunk-id counter is not reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.vectors = nil
	s.dims = 0
	s.chunkRows = make(map[string]int)
	s.urlRows = make(map[string][]int)
}

// validateVectors checks the chunk/vector pairing and dimensional consistency
// against the store's established dimension. Called before any mutation.
func (s *Store) validateVectors(chunks []string, vectors [][]float32) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks: %w", len(vectors), len(chunks), embedding.ErrEmbedding)
	}
	dims := s.dims
	for i, vec := range vectors {
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) == 0 || len(vec) != dims {
			return fmt.Errorf("vector %d has dimension %d, expected %d: %w", i, len(vec), dims, embedding.ErrEmbedding)
		}
	}
	return nil
}

// appendLocked commits pre-validated rows. Caller holds the write lock.
func (s *Store) appendLocked(url, title string, chunks []string, vectors [][]float32, metadata map[string]interface{}) {
	token := uuid.New().String()[:8]
	now := time.Now().UTC()
	if s.dims == 0 {
		s.dims = len(vectors[0])
	}
	start := len(s.records)
	for i, chunk := range chunks {
		seq := s.nextSeq
		s.nextSeq++
		rec := &models.ChunkRecord{
			ChunkID:       fmt.Sprintf("doc_%s_%d", token, seq),
			URL:           url,
			Title:         title,
			Content:       chunk,
			ContentLength: len(chunk),
			CreatedAt:     now,
			Metadata:      metadata,
		}
		vec := make([]float32, s.dims)
		copy(vec, vectors[i])
		row := start + i
		s.records = append(s.records, rec)
		s.vectors = append(s.vectors, vec)
		s.chunkRows[rec.ChunkID] = row
		s.urlRows[url] = append(s.urlRows[url], row)
	}
}

// removeURLLocked rebuilds records, vectors, and both maps from the kept row
// set (all rows not owned by url). New row indices follow the kept rows'
// relative order. Caller holds the write lock.
func (s *Store) removeURLLocked(url string) int {
	doomed, ok := s.urlRows[url]
	if !ok {
		return 0
	}
	drop := make(map[int]struct{}, len(doomed))
	for _, row := range doomed {
		drop[row] = struct{}{}
	}

	kept := len(s.records) - len(doomed)
	records := make([]*models.ChunkRecord, 0, kept)
	vectors := make([][]float32, 0, kept)
	chunkRows := make(map[string]int, kept)
	urlRows := make(map[string][]int)
	for row, rec := range s.records {
		if _, gone := drop[row]; gone {
			continue
		}
		newRow := len(records)
		records = append(records, rec)
		vectors = append(vectors, s.vectors[row])
		chunkRows[rec.ChunkID] = newRow
		urlRows[rec.URL] = append(urlRows[rec.URL], newRow)
	}
	s.records = records
	s.vectors = vectors
	s.chunkRows = chunkRows
	s.urlRows = urlRows
	return len(doomed)
}

// Snapshot is an immutable view of the store's state: the slices are copies
// of the row sequence, and rows themselves are never mutated after commit.
type Snapshot struct {
	Records []*models.ChunkRecord
	Vectors [][]float32
	Dims    int
	NextSeq uint64
}

// Snapshot returns a consistent point-in-time view for searching or persisting.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Records: make([]*models.ChunkRecord, len(s.records)),
		Vectors: make([][]float32, len(s.vectors)),
		Dims:    s.dims,
		NextSeq: s.nextSeq,
	}
	copy(snap.Records, s.records)
	copy(snap.Vectors, s.vectors)
	return snap
}

// Restore replaces the store's contents with the snapshot, rebuilding both
// maps from the record sequence. A duplicate chunk id or a record/vector
// shape mismatch fails without mutating the store.
func (s *Store) Restore(snap *Snapshot) error {
	if len(snap.Records) != len(snap.Vectors) {
		return fmt.Errorf("snapshot has %d records but %d vectors", len(snap.Records), len(snap.Vectors))
	}
	chunkRows := make(map[string]int, len(snap.Records))
	urlRows := make(map[string][]int)
	for row, rec := range snap.Records {
		if len(snap.Vectors[row]) != snap.Dims {
			return fmt.Errorf("vector %d has dimension %d, expected %d", row, len(snap.Vectors[row]), snap.Dims)
		}
		if _, dup := chunkRows[rec.ChunkID]; dup {
			return fmt.Errorf("duplicate chunk id %s", rec.ChunkID)
		}
		chunkRows[rec.ChunkID] = row
		urlRows[rec.URL] = append(urlRows[rec.URL], row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = snap.Records
	s.vectors = snap.Vectors
	if len(snap.Records) == 0 {
		s.dims = 0
	} else {
		s.dims = snap.Dims
	}
	s.chunkRows = chunkRows
	s.urlRows = urlRows
	if snap.NextSeq > s.nextSeq {
		s.nextSeq = snap.NextSeq
	}
	return nil
}
