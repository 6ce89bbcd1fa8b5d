package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/freekieb7/go-perimeter/internal/config"
	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Service provides JSON caching on top of Redis
type Service struct {
	client clientInterface
	logger *slog.Logger
	prefix string
}

// clientInterface abstracts the Redis operations we use
type clientInterface interface {
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, error)
	del(ctx context.Context, keys ...string) error
	exists(ctx context.Context, key string) (bool, error)
	scan(ctx context.Context, pattern string) ([]string, error)
	ping(ctx context.Context) error
}

// Config holds Redis cache configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Prefix       string // Key prefix for namespacing
	Enabled      bool
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 3,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Prefix:       "perimeter:",
		Enabled:      true,
	}
}

// ConfigFrom maps the application cache settings onto a Redis config.
func ConfigFrom(cfg config.Cache) Config {
	c := DefaultConfig()
	c.Enabled = cfg.Enabled
	c.Addr = cfg.RedisAddr
	c.Password = cfg.RedisPassword
	c.DB = cfg.RedisDB
	if cfg.RedisPoolSize > 0 {
		c.PoolSize = cfg.RedisPoolSize
	}
	if cfg.Prefix != "" {
		c.Prefix = cfg.Prefix
	}
	return c
}

// NewService connects to Redis. A disabled config yields a service that
// misses on every read and accepts every write.
func NewService(ctx context.Context, cfg Config, logger *slog.Logger) (*Service, error) {
	if !cfg.Enabled {
		logger.Info("Redis cache disabled")
		return &Service{
			client: noOpClient{},
			logger: logger,
			prefix: cfg.Prefix,
		}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		logger.ErrorContext(ctx, "Failed to connect to Redis", "error", err, "addr", cfg.Addr)
		return nil, apperrors.CacheUnavailableError("failed to connect to Redis", err)
	}

	logger.InfoContext(ctx, "Connected to Redis cache", "addr", cfg.Addr, "db", cfg.DB)

	return &Service{
		client: &redisClientWrapper{client: redisClient},
		logger: logger,
		prefix: cfg.Prefix,
	}, nil
}

func (s *Service) buildKey(key string) string {
	return s.prefix + key
}

// Set stores a JSON encoded value with expiration
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := s.client.set(ctx, s.buildKey(key), data, ttl); err != nil {
		s.logger.WarnContext(ctx, "Cache set failed", "key", key, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Cache set", "key", key, "ttl", ttl)
	return nil
}

// Get decodes the value stored under key into dest
func (s *Service) Get(ctx context.Context, key string, dest any) error {
	val, err := s.client.get(ctx, s.buildKey(key))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return ErrCacheMiss
		}
		s.logger.WarnContext(ctx, "Cache get failed", "key", key, "error", err)
		return err
	}

	if err := json.Unmarshal(val, dest); err != nil {
		s.logger.WarnContext(ctx, "Cache unmarshal failed", "key", key, "error", err)
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	s.logger.DebugContext(ctx, "Cache hit", "key", key)
	return nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.del(ctx, s.buildKey(key)); err != nil {
		s.logger.WarnContext(ctx, "Cache delete failed", "key", key, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Cache deleted", "key", key)
	return nil
}

// DeletePattern removes all keys matching a glob pattern under the prefix
func (s *Service) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := s.client.scan(ctx, s.buildKey(pattern))
	if err != nil {
		s.logger.WarnContext(ctx, "Cache scan failed", "pattern", pattern, "error", err)
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := s.client.del(ctx, keys...); err != nil {
		s.logger.WarnContext(ctx, "Cache delete pattern failed", "pattern", pattern, "error", err)
		return 0, err
	}

	s.logger.DebugContext(ctx, "Cache pattern deleted", "pattern", pattern, "keys", len(keys))
	return len(keys), nil
}

func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	result, err := s.client.exists(ctx, s.buildKey(key))
	if err != nil {
		s.logger.WarnContext(ctx, "Cache exists check failed", "key", key, "error", err)
		return false, err
	}
	return result, nil
}

// Enabled reports whether the service is backed by Redis.
func (s *Service) Enabled() bool {
	_, disabled := s.client.(noOpClient)
	return !disabled
}

func (s *Service) Health(ctx context.Context) error {
	return s.client.ping(ctx)
}

func (s *Service) Close() error {
	if wrapper, ok := s.client.(*redisClientWrapper); ok {
		return wrapper.close()
	}
	return nil
}

// Stats returns connection pool statistics
func (s *Service) Stats() map[string]any {
	if wrapper, ok := s.client.(*redisClientWrapper); ok {
		return wrapper.stats()
	}
	return map[string]any{}
}

// redisClientWrapper wraps redis.Client to implement our interface
type redisClientWrapper struct {
	client *redis.Client
}

func (r *redisClientWrapper) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisClientWrapper) get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *redisClientWrapper) del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisClientWrapper) exists(ctx context.Context, key string) (bool, error) {
	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *redisClientWrapper) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (r *redisClientWrapper) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClientWrapper) close() error {
	return r.client.Close()
}

func (r *redisClientWrapper) stats() map[string]any {
	poolStats := r.client.PoolStats()
	return map[string]any{
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}
}

// noOpClient backs a disabled cache
type noOpClient struct{}

func (noOpClient) set(context.Context, string, []byte, time.Duration) error { return nil }
func (noOpClient) get(context.Context, string) ([]byte, error)              { return nil, ErrCacheMiss }
func (noOpClient) del(context.Context, ...string) error                     { return nil }
func (noOpClient) exists(context.Context, string) (bool, error)             { return false, nil }
func (noOpClient) scan(context.Context, string) ([]string, error)           { return nil, nil }
func (noOpClient) ping(context.Context) error                               { return nil }
