package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID        uuid.UUID      `json:"id"`
	Token     string         `json:"token"`
	Data      map[string]any `json:"data"`
	ExpiresAt time.Time      `json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsNew reports whether the session has not been persisted yet.
func (s *Session) IsNew() bool {
	return s.ID == uuid.Nil
}

// GetString returns the string stored under key, or "".
func (s *Session) GetString(key string) string {
	v, _ := s.Data[key].(string)
	return v
}

func (s *Session) Set(key string, value any) {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = value
}

func (s *Session) Delete(key string) {
	delete(s.Data, key)
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the request session installed by the session
// middleware, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok && sess != nil
}
