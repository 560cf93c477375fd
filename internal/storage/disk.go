// Package storage persists the index to a directory and loads it back,
// validating structural consistency. One store per directory: vectors.bin
// (binary matrix), records.db (ordered record sequence), index_meta.json.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/semdex/internal/index"
)

// ErrCorrupt marks a persisted index whose artifacts disagree (row count or
// dimension mismatch, unreadable files). Callers recover by starting from an
// empty store; the index is a derived artifact and can be rebuilt.
var ErrCorrupt = errors.New("corrupt index")

const (
	vectorsFile = "vectors.bin"
	recordsFile = "records.db"
	metaFile    = "index_meta.json"
)

// Meta is the index-metadata record written alongside the data files.
type Meta struct {
	Model       string    `json:"model"`
	ChunkMethod string    `json:"chunk_method"`
	ChunkSize   int       `json:"chunk_size"`
	Dimensions  int       `json:"embedding_dim"`
	Rows        int       `json:"document_count"`
	ChunkSeq    uint64    `json:"chunk_seq"`
	LastUpdated time.Time `json:"last_updated"`
}

// DiskStore reads and writes one index directory.
type DiskStore struct {
	dir string
	db  *sql.DB
}

// Open prepares dir for persistence, creating it and the record database if
// needed.
func Open(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, recordsFile))
	if err != nil {
		return nil, fmt.Errorf("open record database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &DiskStore{dir: dir, db: db}, nil
}

// Path returns the index directory.
func (d *DiskStore) Path() string {
	return d.dir
}

// Save writes the snapshot and metadata. A failed save leaves the in-memory
// store untouched; the caller decides whether to surface or retry.
func (d *DiskStore) Save(snap *index.Snapshot, meta Meta) error {
	meta.Rows = len(snap.Records)
	meta.Dimensions = snap.Dims
	meta.ChunkSeq = snap.NextSeq
	meta.LastUpdated = time.Now().UTC()

	if err := replaceRecords(d.db, snap.Records); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	if err := writeVectors(filepath.Join(d.dir, vectorsFile), snap.Vectors, snap.Dims); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, metaFile), metaJSON, 0644); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// Load reads the persisted state. A directory that has never been saved
// returns (nil, zero Meta, nil). Structural inconsistency between the
// artifacts returns an error wrapping ErrCorrupt; the on-disk state is left
// as is for inspection.
func (d *DiskStore) Load() (*index.Snapshot, Meta, error) {
	var meta Meta
	metaJSON, err := os.ReadFile(filepath.Join(d.dir, metaFile))
	if os.IsNotExist(err) {
		return nil, meta, nil
	}
	if err != nil {
		return nil, meta, fmt.Errorf("read meta: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, meta, fmt.Errorf("parse meta: %w: %v", ErrCorrupt, err)
	}

	dims, vectors, err := readVectors(filepath.Join(d.dir, vectorsFile))
	if err != nil {
		return nil, meta, fmt.Errorf("read vectors: %w: %v", ErrCorrupt, err)
	}
	records, err := loadRecords(d.db)
	if err != nil {
		return nil, meta, fmt.Errorf("read records: %w: %v", ErrCorrupt, err)
	}

	if len(records) != len(vectors) {
		return nil, meta, fmt.Errorf("%d records but %d vectors: %w", len(records), len(vectors), ErrCorrupt)
	}
	if len(records) != meta.Rows {
		return nil, meta, fmt.Errorf("meta declares %d rows, found %d: %w", meta.Rows, len(records), ErrCorrupt)
	}
	if len(vectors) > 0 && dims != meta.Dimensions {
		return nil, meta, fmt.Errorf("meta declares dimension %d, matrix has %d: %w", meta.Dimensions, dims, ErrCorrupt)
	}

	return &index.Snapshot{
		Records: records,
		Vectors: vectors,
		Dims:    dims,
		NextSeq: meta.ChunkSeq,
	}, meta, nil
}

// Reset deletes the persisted artifacts, leaving an empty directory.
func (d *DiskStore) Reset() error {
	if _, err := d.db.Exec(`DELETE FROM chunk_records`); err != nil {
		return fmt.Errorf("reset records: %w", err)
	}
	for _, name := range []string{vectorsFile, metaFile} {
		if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the record database.
func (d *DiskStore) Close() error {
	return d.db.Close()
}
