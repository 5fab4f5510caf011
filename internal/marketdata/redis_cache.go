package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares quotes between API replicas. Entries expire so a dead
// poller cannot leave stale prices behind.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + strings.ToUpper(symbol)
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (Quote, bool, error) {
	raw, err := c.client.Get(ctx, quoteKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, false, err
	}
	return q, true, nil
}

func (c *RedisCache) Set(ctx context.Context, q Quote) error {
	if !q.Valid() {
		return nil
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, quoteKey(q.Symbol), raw, c.ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
