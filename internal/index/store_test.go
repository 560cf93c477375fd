package index

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/semdex/internal/embedding"
)

// checkInvariants verifies the store's structural invariants:
// parallel rows, chunk-id bijection, and url partition of the row range.
func checkInvariants(t *testing.T, s *Store) {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) != len(s.records) {
		t.Fatalf("len(vectors)=%d != len(records)=%d", len(s.vectors), len(s.records))
	}
	if len(s.chunkRows) != len(s.records) {
		t.Fatalf("chunkRows has %d entries for %d records", len(s.chunkRows), len(s.records))
	}
	for id, row := range s.chunkRows {
		if row < 0 || row >= len(s.records) {
			t.Fatalf("chunkRows[%s]=%d out of range", id, row)
		}
		if s.records[row].ChunkID != id {
			t.Fatalf("chunkRows[%s]=%d but record there has id %s", id, row, s.records[row].ChunkID)
		}
	}
	seen := make(map[int]string)
	for url, rows := range s.urlRows {
		if len(rows) == 0 {
			t.Fatalf("urlRows[%s] is an empty bucket", url)
		}
		for _, row := range rows {
			if row < 0 || row >= len(s.records) {
				t.Fatalf("urlRows[%s] row %d out of range", url, row)
			}
			if owner, dup := seen[row]; dup {
				t.Fatalf("row %d in buckets for both %s and %s", row, owner, url)
			}
			seen[row] = url
			if s.records[row].URL != url {
				t.Fatalf("row %d in bucket %s but record url is %s", row, url, s.records[row].URL)
			}
		}
	}
	if len(seen) != len(s.records) {
		t.Fatalf("url buckets cover %d rows, want %d", len(seen), len(s.records))
	}
	for _, vec := range s.vectors {
		if len(vec) != s.dims {
			t.Fatalf("vector dimension %d != store dims %d", len(vec), s.dims)
		}
	}
}

func vecs(dims int, n int, base float32) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		v[0] = base + float32(i)
		out[i] = v
	}
	return out
}

func chunkTexts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.Repeat(fmt.Sprintf("chunk %d text ", i), 10)
	}
	return out
}

func TestStore_AppendAndInvariants(t *testing.T) {
	s := New()
	checkInvariants(t, s)

	n, err := s.AppendDocument("https://a", "A", chunkTexts(3), vecs(4, 3, 1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("added %d rows, want 3", n)
	}
	checkInvariants(t, s)

	if s.Len() != 3 || s.Dimensions() != 4 || s.URLCount() != 1 {
		t.Errorf("Len=%d Dims=%d URLs=%d", s.Len(), s.Dimensions(), s.URLCount())
	}

	if _, err := s.AppendDocument("https://b", "B", chunkTexts(2), vecs(4, 2, 10), nil); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, s)
	if s.Len() != 5 || s.URLCount() != 2 {
		t.Errorf("Len=%d URLs=%d after second append", s.Len(), s.URLCount())
	}
}

func TestStore_DimensionMismatchRejected(t *testing.T) {
	s := New()
	if _, err := s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 1), nil); err != nil {
		t.Fatal(err)
	}
	_, err := s.AppendDocument("https://b", "B", chunkTexts(2), vecs(8, 2, 1), nil)
	if !errors.Is(err, embedding.ErrEmbedding) {
		t.Fatalf("err = %v, want ErrEmbedding", err)
	}
	// Rejected mutation must leave the store untouched.
	if s.Len() != 2 {
		t.Errorf("Len=%d after rejected append, want 2", s.Len())
	}
	checkInvariants(t, s)
}

func TestStore_VectorCountMismatchRejected(t *testing.T) {
	s := New()
	_, err := s.AppendDocument("https://a", "A", chunkTexts(3), vecs(4, 2, 1), nil)
	if !errors.Is(err, embedding.ErrEmbedding) {
		t.Fatalf("err = %v, want ErrEmbedding", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len=%d after rejected append, want 0", s.Len())
	}
}

func TestStore_RemoveByURL(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(3), vecs(4, 3, 1), nil)
	_, _ = s.AppendDocument("https://b", "B", chunkTexts(2), vecs(4, 2, 10), nil)
	checkInvariants(t, s)

	removed := s.RemoveByURL("https://a")
	if removed != 3 {
		t.Fatalf("removed %d rows, want 3", removed)
	}
	checkInvariants(t, s)
	if s.Len() != 2 || s.URLCount() != 1 {
		t.Errorf("Len=%d URLs=%d after removal", s.Len(), s.URLCount())
	}
	// Only B's chunk ids remain, and they map onto the compacted rows.
	snap := s.Snapshot()
	for _, rec := range snap.Records {
		if rec.URL != "https://b" {
			t.Errorf("record %s belongs to %s, want https://b", rec.ChunkID, rec.URL)
		}
	}

	if got := s.RemoveByURL("https://missing"); got != 0 {
		t.Errorf("removing unknown url returned %d", got)
	}
	checkInvariants(t, s)
}

// Interleaving A and B rows exercises the compaction's row renumbering.
func TestStore_RemoveInterleaved(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 1), nil)
	_, _ = s.AppendDocument("https://b", "B", chunkTexts(2), vecs(4, 2, 10), nil)
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 20), nil)
	checkInvariants(t, s)

	if removed := s.RemoveByURL("https://a"); removed != 4 {
		t.Fatalf("removed %d rows, want 4", removed)
	}
	checkInvariants(t, s)

	snap := s.Snapshot()
	if len(snap.Records) != 2 {
		t.Fatalf("kept %d rows, want 2", len(snap.Records))
	}
	// B's vectors must have followed their records through compaction.
	for i, rec := range snap.Records {
		if rec.URL != "https://b" {
			t.Errorf("row %d url = %s", i, rec.URL)
		}
		if snap.Vectors[i][0] != 10+float32(i) {
			t.Errorf("row %d vector moved incorrectly: got %f", i, snap.Vectors[i][0])
		}
	}
}

func TestStore_ChunkIDsNeverReused(t *testing.T) {
	s := New()
	ids := make(map[string]bool)
	for round := 0; round < 3; round++ {
		_, _ = s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 1), nil)
		for _, rec := range s.Snapshot().Records {
			if ids[rec.ChunkID] {
				t.Fatalf("chunk id %s reused", rec.ChunkID)
			}
			ids[rec.ChunkID] = true
		}
		s.RemoveByURL("https://a")
		checkInvariants(t, s)
	}
}

func TestStore_ReplaceDocument(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(3), vecs(4, 3, 1), nil)
	_, _ = s.AppendDocument("https://b", "B", chunkTexts(1), vecs(4, 1, 10), nil)

	removed, added, err := s.ReplaceDocument("https://a", "A2", chunkTexts(2), vecs(4, 2, 20), nil)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 || added != 2 {
		t.Fatalf("removed=%d added=%d, want 3 and 2", removed, added)
	}
	checkInvariants(t, s)
	if s.Len() != 3 {
		t.Errorf("Len=%d after replace, want 3", s.Len())
	}

	// Replace with no chunks removes the url.
	removed, added, err = s.ReplaceDocument("https://a", "A3", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 || added != 0 {
		t.Fatalf("removed=%d added=%d, want 2 and 0", removed, added)
	}
	if s.URLCount() != 1 {
		t.Errorf("URLs=%d, want 1", s.URLCount())
	}
	checkInvariants(t, s)
}

func TestStore_ReplaceDimensionMismatchLeavesStoreUnchanged(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 1), nil)
	before := s.Snapshot()

	_, _, err := s.ReplaceDocument("https://a", "A2", chunkTexts(1), vecs(8, 1, 1), nil)
	if !errors.Is(err, embedding.ErrEmbedding) {
		t.Fatalf("err = %v, want ErrEmbedding", err)
	}
	after := s.Snapshot()
	if len(after.Records) != len(before.Records) {
		t.Fatalf("row count changed: %d -> %d", len(before.Records), len(after.Records))
	}
	for i := range before.Records {
		if before.Records[i].ChunkID != after.Records[i].ChunkID {
			t.Errorf("row %d changed by failed replace", i)
		}
	}
	checkInvariants(t, s)
}

func TestStore_Clear(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(3), vecs(4, 3, 1), nil)
	s.Clear()
	checkInvariants(t, s)
	if s.Len() != 0 || s.URLCount() != 0 || s.Dimensions() != 0 {
		t.Errorf("Len=%d URLs=%d Dims=%d after clear", s.Len(), s.URLCount(), s.Dimensions())
	}
	// The store accepts a new dimension after clear.
	if _, err := s.AppendDocument("https://c", "C", chunkTexts(1), vecs(8, 1, 1), nil); err != nil {
		t.Fatal(err)
	}
	if s.Dimensions() != 8 {
		t.Errorf("Dims=%d after re-insert, want 8", s.Dimensions())
	}
}

func TestStore_SnapshotUnaffectedByLaterMutation(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 1), nil)
	snap := s.Snapshot()
	s.RemoveByURL("https://a")

	if len(snap.Records) != 2 || len(snap.Vectors) != 2 {
		t.Fatalf("snapshot mutated by later removal: %d records", len(snap.Records))
	}
	if snap.Records[0].URL != "https://a" {
		t.Errorf("snapshot record changed: %s", snap.Records[0].URL)
	}
}

func TestStore_Restore(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 1), nil)
	_, _ = s.AppendDocument("https://b", "B", chunkTexts(1), vecs(4, 1, 10), nil)
	snap := s.Snapshot()

	restored := New()
	if err := restored.Restore(snap); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, restored)
	if restored.Len() != 3 || restored.URLCount() != 2 || restored.Dimensions() != 4 {
		t.Errorf("Len=%d URLs=%d Dims=%d", restored.Len(), restored.URLCount(), restored.Dimensions())
	}

	// Fresh ids after restore must not collide with restored ones.
	if _, err := restored.AppendDocument("https://c", "C", chunkTexts(1), vecs(4, 1, 20), nil); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, restored)
}

func TestStore_RestoreRejectsCorruptSnapshot(t *testing.T) {
	s := New()
	_, _ = s.AppendDocument("https://a", "A", chunkTexts(2), vecs(4, 2, 1), nil)
	snap := s.Snapshot()
	snap.Vectors = snap.Vectors[:1] // shape mismatch

	restored := New()
	if err := restored.Restore(snap); err == nil {
		t.Fatal("corrupt snapshot should fail to restore")
	}
	if restored.Len() != 0 {
		t.Errorf("failed restore mutated the store: Len=%d", restored.Len())
	}

	snap2 := s.Snapshot()
	snap2.Records[1] = snap2.Records[0] // duplicate chunk id
	if err := restored.Restore(snap2); err == nil {
		t.Fatal("duplicate chunk id should fail to restore")
	}
}
