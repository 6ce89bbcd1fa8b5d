package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"
)

// memoryClient is an in-process clientInterface for tests.
type memoryClient struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	err     error
}

func newMemoryClient() *memoryClient {
	return &memoryClient{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *memoryClient) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *memoryClient) set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memoryClient) get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *memoryClient) del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, key := range keys {
		delete(m.entries, key)
		delete(m.ttls, key)
	}
	return nil
}

func (m *memoryClient) exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.entries[key]
	return ok, nil
}

func (m *memoryClient) scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var keys []string
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *memoryClient) ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *memoryClient) ttl(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl, ok := m.ttls[key]
	return ttl, ok
}

var errRedisDown = errors.New("redis down")

func newTestService(client clientInterface) *Service {
	return &Service{
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		prefix: "perimeter:",
	}
}
