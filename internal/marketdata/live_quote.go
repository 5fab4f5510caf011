package marketdata

import (
	"context"
	"strings"
	"sync"
)

type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]Quote
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: map[string]Quote{}}
}

func (c *MemoryCache) Get(ctx context.Context, symbol string) (Quote, bool, error) {
	c.mu.RLock()
	q, ok := c.data[strings.ToUpper(symbol)]
	c.mu.RUnlock()
	return q, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, q Quote) error {
	if !q.Valid() {
		return nil
	}
	c.mu.Lock()
	c.data[q.Symbol] = q
	c.mu.Unlock()
	return nil
}
