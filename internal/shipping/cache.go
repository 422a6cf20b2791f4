package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitrine-field/api/internal/domain"
)

const defaultQuoteTTL = 5 * time.Minute

// QuoteCache stores successful carrier quotes keyed by method, postal code and package envelope.
type QuoteCache interface {
	Get(ctx context.Context, key string) (RateResponse, bool, error)
	Set(ctx context.Context, key string, quote RateResponse) error
}

// QuoteCacheKey builds the cache key for a method and rate request. Dimensions are rounded to
// two decimals so float noise does not fragment the cache.
func QuoteCacheKey(method domain.ShippingMethod, req RateRequest) string {
	return strings.Join([]string{
		strings.TrimSpace(method.TenantID),
		strings.TrimSpace(method.ID),
		strings.ToUpper(strings.TrimSpace(req.PostalCode)),
		fmt.Sprintf("%.2f", req.Weight),
		fmt.Sprintf("%.2f", req.Length),
		fmt.Sprintf("%.2f", req.Width),
		fmt.Sprintf("%.2f", req.Height),
	}, "|")
}

// MemoryQuoteCache is a process-local TTL cache.
type MemoryQuoteCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]memoryQuoteEntry
}

type memoryQuoteEntry struct {
	quote   RateResponse
	expires time.Time
}

// NewMemoryQuoteCache constructs an in-memory cache. A nil clock uses time.Now.
func NewMemoryQuoteCache(ttl time.Duration, now func() time.Time) *MemoryQuoteCache {
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryQuoteCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]memoryQuoteEntry),
	}
}

func (c *MemoryQuoteCache) Get(_ context.Context, key string) (RateResponse, bool, error) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return RateResponse{}, false, nil
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return RateResponse{}, false, nil
	}
	return entry.quote, true, nil
}

func (c *MemoryQuoteCache) Set(_ context.Context, key string, quote RateResponse) error {
	c.mu.Lock()
	c.m[key] = memoryQuoteEntry{quote: quote, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// RedisQuoteCache shares quotes across instances through Redis.
type RedisQuoteCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewRedisQuoteCache wraps a go-redis client. Keys are namespaced with prefix.
func NewRedisQuoteCache(client redis.Cmdable, ttl time.Duration, prefix string) (*RedisQuoteCache, error) {
	if client == nil {
		return nil, errors.New("shipping: redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "shipping:quote:"
	}
	return &RedisQuoteCache{client: client, ttl: ttl, prefix: prefix}, nil
}

func (c *RedisQuoteCache) Get(ctx context.Context, key string) (RateResponse, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return RateResponse{}, false, nil
	}
	if err != nil {
		return RateResponse{}, false, fmt.Errorf("shipping: redis get: %w", err)
	}
	var quote RateResponse
	if err := json.Unmarshal(raw, &quote); err != nil {
		return RateResponse{}, false, fmt.Errorf("shipping: decode cached quote: %w", err)
	}
	return quote, true, nil
}

func (c *RedisQuoteCache) Set(ctx context.Context, key string, quote RateResponse) error {
	raw, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("shipping: encode cached quote: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("shipping: redis set: %w", err)
	}
	return nil
}
