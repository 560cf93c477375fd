// Package models defines core data structures for chunk records, queries, and search results.
package models

import (
	"fmt"
	"time"
)

// ChunkRecord is one indexed chunk of a crawled page. Records are immutable
// once created; a record is only removed together with all other records of
// its URL.
type ChunkRecord struct {
	ChunkID       string                 `json:"chunk_id"`
	URL           string                 `json:"url"`
	Title         string                 `json:"title"`
	Content       string                 `json:"content"`
	ContentLength int                    `json:"content_length"`
	CreatedAt     time.Time              `json:"created_at"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// PageInput is a successfully fetched page handed over by the crawling side:
// extracted text plus source metadata (crawl_success, media_count, link_count, ...).
type PageInput struct {
	URL      string                 `json:"url"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks that the input identifies a page and carries text.
func (p *PageInput) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if p.Content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	return nil
}

// Stats describes the current state of the index.
type Stats struct {
	TotalDocuments     int       `json:"total_documents"`
	TotalEmbeddings    int       `json:"total_embeddings"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	IndexedURLs        int       `json:"indexed_urls"`
	Model              string    `json:"model"`
	ChunkMethod        string    `json:"chunk_method"`
	StoragePath        string    `json:"storage_path"`
	LastUpdated        time.Time `json:"last_updated"`
}
