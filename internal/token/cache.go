package token

import (
	"context"
	"sync"
)

// Cache is the capability the service needs from a token cache. Put must
// not store a token whose TTL is not positive.
type Cache interface {
	Get(ctx context.Context, value string) (Token, bool, error)
	Put(ctx context.Context, t Token) error
	Evict(ctx context.Context, value string) error
}

// NoCache stores nothing, so every Get misses and Resolve always reads the
// store. It is the cache of deployments without a shared cache: a cache
// private to one process is not evicted by mutations made in another.
type NoCache struct{}

func (NoCache) Get(ctx context.Context, value string) (Token, bool, error) {
	return Token{}, false, nil
}

func (NoCache) Put(ctx context.Context, t Token) error { return nil }

func (NoCache) Evict(ctx context.Context, value string) error { return nil }

// MemoryCache is an in-process Cache used as a test fake. Entries expire at
// the token's cutoff. Only mutations made through the same Service evict it.
type MemoryCache struct {
	clock   Clock
	mu      sync.RWMutex
	entries map[string]Token
}

func NewMemoryCache(clock Clock) *MemoryCache {
	return &MemoryCache{
		clock:   clock,
		entries: make(map[string]Token),
	}
}

func (c *MemoryCache) Get(ctx context.Context, value string) (Token, bool, error) {
	c.mu.RLock()
	t, ok := c.entries[value]
	c.mu.RUnlock()
	if !ok {
		return Token{}, false, nil
	}

	if c.clock.TTL(t) <= 0 {
		c.mu.Lock()
		delete(c.entries, value)
		c.mu.Unlock()
		return Token{}, false, nil
	}
	return t, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, t Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clock.TTL(t) <= 0 {
		delete(c.entries, t.Value)
		return nil
	}
	c.entries[t.Value] = t
	return nil
}

func (c *MemoryCache) Evict(ctx context.Context, value string) error {
	c.mu.Lock()
	delete(c.entries, value)
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including expired ones not yet
// swept by Get.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var (
	_ Cache = NoCache{}
	_ Cache = (*MemoryCache)(nil)
)
