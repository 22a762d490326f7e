package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(address string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// resultCache is a bounded map with first-in-first-out eviction. Cached
// non-matches are kept so repeated lookups of a bad address stay free.
type resultCache struct {
	mu    sync.Mutex
	size  int
	order []string
	items map[string]Result
}

func newResultCache(size int) *resultCache {
	if size <= 0 {
		size = 1024
	}
	return &resultCache{size: size, items: make(map[string]Result, size)}
}

func (c *resultCache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.items[key]
	if !ok {
		return nil, false
	}
	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", r.Matched))
	return &r, true
}

func (c *resultCache) put(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; !ok {
		if len(c.order) >= c.size {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}
	c.items[key] = *r
}
