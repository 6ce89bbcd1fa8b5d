package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
	"github.com/freekieb7/go-perimeter/internal/metrics"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	DefaultExpiryDays int
	ValueLength       int
}

func DefaultConfig() Config {
	return Config{
		DefaultExpiryDays: 7,
		ValueLength:       MaxValueLength,
	}
}

// Service composes the token store and cache.
type Service struct {
	store  Store
	cache  Cache
	clock  Clock
	config Config
	logger *slog.Logger

	lookups singleflight.Group
}

func NewService(store Store, cache Cache, clock Clock, config Config, logger *slog.Logger) *Service {
	if config.ValueLength <= 0 {
		config.ValueLength = MaxValueLength
	}
	return &Service{
		store:  store,
		cache:  cache,
		clock:  clock,
		config: config,
		logger: logger,
	}
}

func (s *Service) Clock() Clock {
	return s.clock
}

// CreateParams describes a token to issue. Zero values take defaults: a
// random value, and an expiry ExpiresInDays (or the configured default)
// days from today.
type CreateParams struct {
	Value         string
	ExpiresOn     time.Time
	ExpiresInDays int
	CreatedBy     string
}

// CreateAccessToken stores a new active token and warms the cache with it.
// A duplicate value fails with ErrDuplicateToken; it is not retried.
func (s *Service) CreateAccessToken(ctx context.Context, params CreateParams) (Token, error) {
	value := strings.TrimSpace(params.Value)
	if value == "" {
		generated, err := RandomValue(s.config.ValueLength)
		if err != nil {
			return Token{}, apperrors.InternalError("failed to generate token value", err)
		}
		value = generated
	} else if len(value) > MaxValueLength {
		return Token{}, apperrors.ValidationError(fmt.Sprintf("token value cannot exceed %d characters", MaxValueLength), nil)
	}

	expiresOn := params.ExpiresOn
	switch {
	case !expiresOn.IsZero():
		expiresOn = DateOf(expiresOn)
	case params.ExpiresInDays != 0:
		expiresOn = s.clock.DaysFromToday(params.ExpiresInDays)
	default:
		expiresOn = s.clock.DaysFromToday(s.config.DefaultExpiryDays)
	}

	t, err := s.store.Create(ctx, Token{
		Value:     value,
		Active:    true,
		ExpiresOn: expiresOn,
		CreatedBy: params.CreatedBy,
	})
	if err != nil {
		return Token{}, err
	}

	s.warm(ctx, t)

	s.logger.InfoContext(ctx, "Access token created",
		"token", MaskValue(t.Value),
		"expires_on", t.ExpiresOn.Format(time.DateOnly),
		"created_by", t.CreatedBy)
	return t, nil
}

// Resolve looks a value up in the cache, then the store. A value with no
// token yields Empty and a nil error; only I/O failures are errors.
func (s *Service) Resolve(ctx context.Context, value string) (Lookup, error) {
	if value == "" {
		return Empty, nil
	}

	t, ok, err := s.cache.Get(ctx, value)
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
		s.logger.WarnContext(ctx, "Token cache error", "error", err, "token", MaskValue(value))
	} else if ok {
		metrics.TokenLookupsTotal.WithLabelValues("cache").Inc()
		return Found(t), nil
	}

	// Concurrent misses for the same value share one load.
	v, err, _ := s.lookups.Do(value, func() (any, error) {
		return s.load(ctx, value)
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			metrics.TokenLookupsTotal.WithLabelValues("miss").Inc()
			return Empty, nil
		}
		return Empty, err
	}

	metrics.TokenLookupsTotal.WithLabelValues("store").Inc()
	return Found(v.(Token)), nil
}

// load reads value from the store and caches it. A mutation committed
// between the read and the Put has already evicted, so once cached the row
// is read again; a token that changed or vanished meanwhile is evicted and
// the fresh state returned.
func (s *Service) load(ctx context.Context, value string) (Token, error) {
	t, err := s.store.GetByValue(ctx, value)
	if err != nil {
		return Token{}, err
	}
	if !s.warm(ctx, t) {
		return t, nil
	}

	current, err := s.store.GetByValue(ctx, value)
	if err == nil && sameState(t, current) {
		return t, nil
	}

	if evictErr := s.evict(ctx, value); evictErr != nil {
		s.logger.ErrorContext(ctx, "Failed to evict token changed during lookup", "error", evictErr, "token", MaskValue(value))
		return Token{}, evictErr
	}
	if err != nil {
		return Token{}, err
	}
	return current, nil
}

func sameState(a, b Token) bool {
	return a.ID == b.ID &&
		a.Active == b.Active &&
		a.ExpiresOn.Equal(b.ExpiresOn) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

// Check validates a directly submitted value, distinguishing why it is
// not acceptable: ErrTokenNotFound, ErrTokenInactive or ErrTokenExpired.
func (s *Service) Check(ctx context.Context, value string) (Token, error) {
	lookup, err := s.Resolve(ctx, value)
	if err != nil {
		return Token{}, err
	}

	t, ok := lookup.Token()
	if !ok {
		return Token{}, ErrTokenNotFound
	}

	switch s.clock.State(t) {
	case StateInactive:
		return t, ErrTokenInactive
	case StateActiveExpired:
		return t, ErrTokenExpired
	}
	return t, nil
}

// RecordUse appends a usage record for a resolved token. Callers must have
// checked validity; an Empty lookup fails with ErrEmptyToken.
func (s *Service) RecordUse(ctx context.Context, lookup Lookup, p Presentation) (UsageRecord, error) {
	t, ok := lookup.Token()
	if !ok {
		return UsageRecord{}, ErrEmptyToken
	}

	return s.store.RecordUsage(ctx, UsageRecord{
		TokenID:         t.ID,
		TokenValue:      t.Value,
		Email:           p.Email,
		Name:            p.Name,
		ClientIP:        p.ClientIP,
		ClientUserAgent: p.ClientUserAgent,
	})
}

// HasRecordedUse reports whether the token of lookup already has a usage
// record from the client described by p.
func (s *Service) HasRecordedUse(ctx context.Context, lookup Lookup, p Presentation) (bool, error) {
	t, ok := lookup.Token()
	if !ok {
		return false, ErrEmptyToken
	}
	return s.store.HasUsage(ctx, t.ID, p.ClientIP, p.ClientUserAgent)
}

// Update persists t and evicts its cache entry; the next Resolve reloads
// it from the store.
func (s *Service) Update(ctx context.Context, t Token) (Token, error) {
	updated, err := s.store.Update(ctx, t)
	if err != nil {
		return Token{}, err
	}

	if err := s.evict(ctx, updated.Value); err != nil {
		return updated, err
	}

	s.logger.InfoContext(ctx, "Access token updated",
		"token", MaskValue(updated.Value),
		"active", updated.Active,
		"expires_on", updated.ExpiresOn.Format(time.DateOnly))
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, value string) (Token, error) {
	return s.mutate(ctx, value, func(t *Token) { t.Active = false })
}

func (s *Service) Activate(ctx context.Context, value string) (Token, error) {
	return s.mutate(ctx, value, func(t *Token) { t.Active = true })
}

// Extend moves the expiry date to days after today.
func (s *Service) Extend(ctx context.Context, value string, days int) (Token, error) {
	if days < 0 {
		return Token{}, apperrors.ValidationError("days cannot be negative", nil)
	}
	expiresOn := s.clock.DaysFromToday(days)
	return s.mutate(ctx, value, func(t *Token) { t.ExpiresOn = expiresOn })
}

func (s *Service) mutate(ctx context.Context, value string, fn func(*Token)) (Token, error) {
	t, err := s.store.GetByValue(ctx, value)
	if err != nil {
		return Token{}, err
	}
	fn(&t)
	return s.Update(ctx, t)
}

// Purge deletes a token, its usage records and its cache entry.
func (s *Service) Purge(ctx context.Context, value string) error {
	t, err := s.store.GetByValue(ctx, value)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, t); err != nil {
		return err
	}

	if err := s.evict(ctx, t.Value); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Access token purged", "token", MaskValue(t.Value))
	return nil
}

// List returns every token annotated with its current state.
func (s *Service) List(ctx context.Context) ([]Status, error) {
	tokens, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(tokens))
	for _, t := range tokens {
		statuses = append(statuses, s.clock.Status(t))
	}
	return statuses, nil
}

func (s *Service) Usage(ctx context.Context, value string, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListUsage(ctx, value, limit)
}

// warm caches t, logging rather than failing when the cache is unavailable.
// It reports whether a copy may now be cached.
func (s *Service) warm(ctx context.Context, t Token) bool {
	if _, ok := s.cache.(NoCache); ok {
		return false
	}
	if err := s.cache.Put(ctx, t); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("put").Inc()
		s.logger.WarnContext(ctx, "Failed to cache token", "error", err, "token", MaskValue(t.Value))
		return false
	}
	return true
}

// evict failures are returned: a mutation is not complete while a cached
// copy of the old token remains.
func (s *Service) evict(ctx context.Context, value string) error {
	if err := s.cache.Evict(ctx, value); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("evict").Inc()
		return apperrors.CacheError("failed to evict token from cache", err)
	}
	return nil
}
