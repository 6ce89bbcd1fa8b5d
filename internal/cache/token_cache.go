package cache

import (
	"context"
	"errors"

	"github.com/freekieb7/go-perimeter/internal/token"
)

// TokenCache caches access tokens in Redis until the end of their expiry
// date.
type TokenCache struct {
	cache *Service
	clock token.Clock
}

func NewTokenCache(cache *Service, clock token.Clock) *TokenCache {
	return &TokenCache{
		cache: cache,
		clock: clock,
	}
}

func (c *TokenCache) Get(ctx context.Context, value string) (token.Token, bool, error) {
	var t token.Token
	if err := c.cache.Get(ctx, tokenCacheKey(value), &t); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return token.Token{}, false, nil
		}
		return token.Token{}, false, err
	}
	return t, true, nil
}

// Put stores t with a TTL running to its cutoff. A token past its cutoff
// is evicted instead.
func (c *TokenCache) Put(ctx context.Context, t token.Token) error {
	ttl := c.clock.TTL(t)
	if ttl <= 0 {
		return c.Evict(ctx, t.Value)
	}
	return c.cache.Set(ctx, tokenCacheKey(t.Value), t, ttl)
}

func (c *TokenCache) Evict(ctx context.Context, value string) error {
	return c.cache.Delete(ctx, tokenCacheKey(value))
}

// Flush evicts every cached token.
func (c *TokenCache) Flush(ctx context.Context) (int, error) {
	return c.cache.DeletePattern(ctx, "token:*")
}

func tokenCacheKey(value string) string {
	return "token:" + value
}

var _ token.Cache = (*TokenCache)(nil)
