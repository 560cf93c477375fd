package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/semdex/internal/models"
)

// The record sequence lives in records.db: one row per chunk record, ordered
// by position. Position mirrors the in-memory row index at save time; the
// secondary maps are not stored and are rebuilt from this sequence on load.

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunk_records (
		position INTEGER PRIMARY KEY,
		chunk_id TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		title TEXT,
		content TEXT NOT NULL,
		content_length INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_records_url ON chunk_records(url);
	`
	_, err := db.Exec(schema)
	return err
}

// replaceRecords rewrites the full record sequence in one transaction.
func replaceRecords(db *sql.DB, records []*models.ChunkRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunk_records`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO chunk_records (position, chunk_id, url, title, content, content_length, created_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pos, rec := range records {
		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", rec.ChunkID, err)
		}
		if _, err := stmt.Exec(pos, rec.ChunkID, rec.URL, rec.Title, rec.Content,
			rec.ContentLength, rec.CreatedAt, string(metadataJSON)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// loadRecords reads the full record sequence ordered by position.
func loadRecords(db *sql.DB) ([]*models.ChunkRecord, error) {
	rows, err := db.Query(
		`SELECT chunk_id, url, title, content, content_length, created_at, metadata
		 FROM chunk_records ORDER BY position`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ChunkRecord
	for rows.Next() {
		var rec models.ChunkRecord
		var metadataJSON string
		if err := rows.Scan(&rec.ChunkID, &rec.URL, &rec.Title, &rec.Content,
			&rec.ContentLength, &rec.CreatedAt, &metadataJSON); err != nil {
			return nil, err
		}
		if metadataJSON != "" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", rec.ChunkID, err)
			}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
