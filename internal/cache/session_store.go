package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/freekieb7/go-perimeter/internal/session"
)

// SessionStore is a cache-aside wrapper around a session.Store.
type SessionStore struct {
	cache      *Service
	baseStore  session.Store
	logger     *slog.Logger
	sessionTTL time.Duration
}

// DefaultSessionTTL bounds how long a session stays cached.
const DefaultSessionTTL = 30 * time.Minute

func NewSessionStore(cache *Service, baseStore session.Store, logger *slog.Logger, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &SessionStore{
		cache:      cache,
		baseStore:  baseStore,
		logger:     logger,
		sessionTTL: ttl,
	}
}

// GetSessionByToken retrieves a session by token, checking cache first
func (s *SessionStore) GetSessionByToken(ctx context.Context, token string) (session.Session, error) {
	cacheKey := sessionCacheKey(token)

	var cached session.Session
	err := s.cache.Get(ctx, cacheKey, &cached)
	if err == nil && cached.ExpiresAt.After(time.Now()) {
		s.logger.DebugContext(ctx, "Session cache hit", "token", maskToken(token))
		if cached.Data == nil {
			cached.Data = make(map[string]any)
		}
		return cached, nil
	}

	if err != nil && !errors.Is(err, ErrCacheMiss) {
		s.logger.WarnContext(ctx, "Session cache error", "error", err, "token", maskToken(token))
	}

	sess, err := s.baseStore.GetSessionByToken(ctx, token)
	if err != nil {
		return session.Session{}, err
	}

	s.store(ctx, sess)

	s.logger.DebugContext(ctx, "Session retrieved from database", "token", maskToken(token))
	return sess, nil
}

// SaveSession saves a session and refreshes the cached copy
func (s *SessionStore) SaveSession(ctx context.Context, sess session.Session) (session.Session, error) {
	saved, err := s.baseStore.SaveSession(ctx, sess)
	if err != nil {
		return session.Session{}, err
	}

	s.store(ctx, saved)
	return saved, nil
}

func (s *SessionStore) NewSession() (session.Session, error) {
	return s.baseStore.NewSession()
}

// RegenerateSession swaps the token and drops the cache entry of the old one
func (s *SessionStore) RegenerateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	oldToken := sess.Token

	regenerated, err := s.baseStore.RegenerateSession(ctx, sess)
	if err != nil {
		return session.Session{}, err
	}

	if err := s.cache.Delete(ctx, sessionCacheKey(oldToken)); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete regenerated session from cache", "error", err, "token", maskToken(oldToken))
	}
	s.store(ctx, regenerated)
	return regenerated, nil
}

// DeleteSession deletes a session from both cache and base store
func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	if err := s.baseStore.DeleteSession(ctx, token); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, sessionCacheKey(token)); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete session from cache", "error", err, "token", maskToken(token))
	}

	s.logger.DebugContext(ctx, "Session deleted", "token", maskToken(token))
	return nil
}

// InvalidateAllSessions clears all cached sessions
func (s *SessionStore) InvalidateAllSessions(ctx context.Context) (int, error) {
	n, err := s.cache.DeletePattern(ctx, "session:*")
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to clear session cache", "error", err)
		return 0, err
	}
	return n, nil
}

// store caches sess, dropping any stale copy when the write fails.
func (s *SessionStore) store(ctx context.Context, sess session.Session) {
	ttl := min(s.sessionTTL, time.Until(sess.ExpiresAt))
	if ttl <= 0 {
		return
	}

	key := sessionCacheKey(sess.Token)
	if err := s.cache.Set(ctx, key, sess, ttl); err != nil {
		s.logger.WarnContext(ctx, "Failed to cache session", "error", err, "token", maskToken(sess.Token))
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "Failed to drop stale session from cache", "error", err, "token", maskToken(sess.Token))
		}
	}
}

func sessionCacheKey(token string) string {
	return "session:" + token
}

// maskToken masks a token for logging (shows only first 8 characters)
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "***"
}

var _ session.Store = (*SessionStore)(nil)
