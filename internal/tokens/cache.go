package tokens

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize caps the cache so abandoned requests cannot grow it
// without bound. Entries are normally consumed within one request.
const defaultCacheSize = 10000

// Cache maps request ids to prompt token counts. Written by the request
// rewriter, consumed (removed) by the response assembler or the streaming
// finalizer. Thread-safe, LRU-evicted.
type Cache struct {
	cache *lru.Cache[string, int]
}

// NewCache creates a token cache holding at most maxSize entries.
func NewCache(maxSize int) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}

	cache, err := lru.New[string, int](maxSize)
	if err != nil {
		return nil, fmt.Errorf("tokens: failed to create cache: %w", err)
	}

	return &Cache{cache: cache}, nil
}

// Put stores a token count for a request id. Non-positive counts are not
// stored; a zero estimate carries no information for usage backfill.
func (c *Cache) Put(id string, tokens int) {
	if c == nil || c.cache == nil || tokens <= 0 {
		return
	}
	c.cache.Add(id, tokens)
}

// Get retrieves the token count for a request id. With remove set, the
// entry is consumed; removing a missing key is a no-op.
func (c *Cache) Get(id string, remove bool) (int, bool) {
	if c == nil || c.cache == nil {
		return 0, false
	}

	tokens, ok := c.cache.Get(id)
	if !ok {
		return 0, false
	}
	if remove {
		c.cache.Remove(id)
	}
	return tokens, true
}

// Clear removes all entries.
func (c *Cache) Clear() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Purge()
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
