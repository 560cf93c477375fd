package embedding

import (
	"container/list"
	"context"
	"sync"
)

// Cache is an LRU cache for embeddings keyed by text. All operations mutate
// the recency list, so every access takes the full lock.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache creates a cache with the given capacity.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *Cache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// CachedProvider wraps a Provider with an LRU cache for single-text embeds
// (the query path). Batch embeds bypass the cache: build batches are unique
// chunk texts and caching them would only evict hot query entries.
type CachedProvider struct {
	Provider
	cache *Cache
}

// NewCachedProvider wraps p with a cache of the given capacity.
func NewCachedProvider(p Provider, capacity int) *CachedProvider {
	if capacity <= 0 {
		capacity = 1024
	}
	return &CachedProvider{Provider: p, cache: NewCache(capacity)}
}

// Embed returns a cached embedding when available, delegating otherwise.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := p.cache.Get(text); ok {
		return emb, nil
	}
	emb, err := p.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(text, emb)
	return emb, nil
}
