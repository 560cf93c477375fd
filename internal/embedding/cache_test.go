package embedding

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	if _, ok := c.Get("a"); !ok {
		t.Error("a should be cached")
	}
	c.Set("c", []float32{3}) // evicts b (a was touched)
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be cached")
	}
}

type countingProvider struct {
	*MockProvider
	embeds int
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.embeds++
	return p.MockProvider.Embed(ctx, text)
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{MockProvider: NewMockProvider(8)}
	p := NewCachedProvider(inner, 16)
	ctx := context.Background()

	first, err := p.Embed(ctx, "query text")
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Embed(ctx, "query text")
	if err != nil {
		t.Fatal(err)
	}
	if inner.embeds != 1 {
		t.Errorf("expected 1 provider call, got %d", inner.embeds)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached embedding differs from original")
		}
	}
}

// Cache hits touch the recency list, so concurrent reads exercise the same
// lock as writes. Run with -race.
func TestCachedProvider_ConcurrentHits(t *testing.T) {
	p := NewCachedProvider(NewMockProvider(8), 64)
	ctx := context.Background()

	texts := make([]string, 8)
	want := make([][]float32, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("query %d", i)
		emb, err := p.Embed(ctx, texts[i])
		if err != nil {
			t.Fatal(err)
		}
		want[i] = emb
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				text := texts[(g+i)%len(texts)]
				emb, err := p.Embed(ctx, text)
				if err != nil {
					errs <- err
					return
				}
				if len(emb) != 8 {
					errs <- fmt.Errorf("embedding for %q has %d dims", text, len(emb))
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for i, text := range texts {
		emb, err := p.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		for j := range emb {
			if emb[j] != want[i][j] {
				t.Fatalf("embedding for %q changed under concurrency", text)
			}
		}
	}
}
