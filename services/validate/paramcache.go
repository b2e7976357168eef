package validate

import (
	"crypto/sha256"
	"fmt"
	"sync"
)

// Params is an optimized parameter set produced by the external optimizer.
type Params map[string]float64

// ParamSpace bounds the optimizer search per parameter: [min, max].
type ParamSpace map[string][2]float64

// ParamCache memoizes optimizer output per (symbol, train window). It is
// an explicit instance owned by one validator — never package-level state,
// so concurrent validations cannot share or corrupt entries.
type ParamCache struct {
	mu      sync.Mutex
	entries map[string]Params
	hits    int
}

func NewParamCache() *ParamCache {
	return &ParamCache{entries: make(map[string]Params)}
}

func cacheKey(symbol string, startMs, endMs uint64) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", symbol, startMs, endMs))))
}

func (c *ParamCache) get(key string) (Params, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return p, ok
}

func (c *ParamCache) put(key string, p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = p
}

// Hits reports how many lookups were served from cache.
func (c *ParamCache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
