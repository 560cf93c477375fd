// Package integration provides end-to-end tests (requires real on-disk storage).
package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/hyperjump/semdex/internal/chunker"
	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/index"
	"github.com/hyperjump/semdex/internal/indexer"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/search"
	"github.com/hyperjump/semdex/internal/storage"
)

// pageText is longer than the minimum chunk length but shorter than the chunk
// size, so it indexes as exactly one chunk whose content equals the text.
var pageText = strings.TrimSpace(strings.Repeat("Machine learning systems learn patterns from data. ", 3))

func th(v float64) *float64 { return &v }

func buildPipeline(t *testing.T, dir string) (*indexer.Indexer, *search.Engine, *index.Store) {
	t.Helper()
	disk, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = disk.Close() })

	ck, err := chunker.New(chunker.MethodFixed, 512, 50)
	if err != nil {
		t.Fatal(err)
	}
	store := index.New()
	provider := embedding.NewMockProvider(8)
	idx := indexer.New(store, provider, ck, disk)
	if err := idx.Load(); err != nil {
		t.Fatal(err)
	}
	return idx, search.NewEngine(store, provider), store
}

func TestIntegration_IngestSearchReload(t *testing.T) {
	dir := t.TempDir()
	idx, engine, _ := buildPipeline(t, dir)
	ctx := context.Background()

	added, err := idx.InsertPage(ctx, &models.PageInput{
		URL: "https://example.com/ml", Title: "ML", Content: pageText,
	})
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Fatalf("added %d chunks, want 1", added)
	}
	if _, err := idx.InsertPage(ctx, &models.PageInput{
		URL: "https://example.com/search", Title: "Search",
		Content: strings.TrimSpace(strings.Repeat("Semantic search uses embeddings to find similar content. ", 3)),
	}); err != nil {
		t.Fatal(err)
	}

	// The query matches an indexed chunk exactly, so the mock embedder scores
	// it at 1.0.
	resp, err := engine.Search(ctx, &models.SearchQuery{Query: pageText, TopK: 5, Threshold: th(0.9)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Fatalf("got %d results, want 1", resp.Total)
	}
	if resp.Results[0].URL != "https://example.com/ml" {
		t.Errorf("top result url = %s", resp.Results[0].URL)
	}

	// A fresh pipeline over the same directory sees the same index.
	idx2, engine2, store2 := buildPipeline(t, dir)
	if store2.Len() != 2 {
		t.Fatalf("reloaded store has %d rows, want 2", store2.Len())
	}
	resp, err = engine2.Search(context.Background(), &models.SearchQuery{Query: pageText, TopK: 5, Threshold: th(0.9)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].URL != "https://example.com/ml" {
		t.Errorf("reloaded search = %+v", resp.Results)
	}

	if _, err := idx2.DeleteByURL("https://example.com/ml"); err != nil {
		t.Fatal(err)
	}
	resp, err = engine2.Search(context.Background(), &models.SearchQuery{Query: pageText, TopK: 5, Threshold: th(0.9)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Errorf("deleted page still returned: %+v", resp.Results)
	}
}
