package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freekieb7/go-perimeter/internal/database"
	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
	"github.com/google/uuid"
)

const (
	CookieName string = "SID"

	DefaultTTL = 8 * time.Hour
)

var ErrSessionNotFound = apperrors.SessionNotFoundError("session not found", nil)

// Store persists sessions keyed by their cookie token.
type Store interface {
	NewSession() (Session, error)
	GetSessionByToken(ctx context.Context, token string) (Session, error)
	SaveSession(ctx context.Context, sess Session) (Session, error)
	RegenerateSession(ctx context.Context, sess Session) (Session, error)
	DeleteSession(ctx context.Context, token string) error
}

type SQLStore struct {
	DB  *database.Database
	TTL time.Duration
	Now func() time.Time
}

func NewSQLStore(db *database.Database, ttl time.Duration) *SQLStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLStore{
		DB:  db,
		TTL: ttl,
		Now: time.Now,
	}
}

func (s *SQLStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *SQLStore) NewSession() (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	return Session{
		Token:     token,
		Data:      map[string]any{},
		ExpiresAt: s.now().Add(s.TTL),
	}, nil
}

// GetSessionByToken returns ErrSessionNotFound for unknown and expired
// sessions alike.
func (s *SQLStore) GetSessionByToken(ctx context.Context, token string) (Session, error) {
	var sess Session
	var data string

	query := `SELECT id, data, expires_at, created_at FROM perimeter_session WHERE token = $1`
	row := s.DB.QueryRowContext(ctx, query, token)
	if err := row.Scan(&sess.ID, &data, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, apperrors.DatabaseError("failed to get session by token", err)
	}

	if !sess.ExpiresAt.After(s.now()) {
		return Session{}, ErrSessionNotFound
	}

	if err := json.Unmarshal([]byte(data), &sess.Data); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	if sess.Data == nil {
		sess.Data = make(map[string]any)
	}

	sess.Token = token
	return sess, nil
}

func (s *SQLStore) SaveSession(ctx context.Context, sess Session) (Session, error) {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return Session{}, fmt.Errorf("failed to marshal session data: %w", err)
	}
	if sess.Data == nil {
		data = []byte("{}")
	}
	sess.ExpiresAt = sess.ExpiresAt.UTC()

	if sess.IsNew() {
		sess.ID = uuid.New()
		sess.CreatedAt = s.now()
		if _, err := s.DB.ExecContext(ctx, `INSERT INTO perimeter_session (id, token, data, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`, sess.ID, sess.Token, string(data), sess.ExpiresAt, sess.CreatedAt); err != nil {
			return Session{}, apperrors.DatabaseError("failed to create session", err)
		}
		return sess, nil
	}

	result, err := s.DB.ExecContext(ctx, `UPDATE perimeter_session SET data = $1, expires_at = $2 WHERE id = $3`, string(data), sess.ExpiresAt, sess.ID)
	if err != nil {
		return Session{}, apperrors.DatabaseError("failed to update session", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// RegenerateSession swaps the session token, keeping its data.
func (s *SQLStore) RegenerateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.IsNew() {
		return Session{}, fmt.Errorf("cannot regenerate token for new session")
	}

	newToken, err := generateToken()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate new session token: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE perimeter_session SET token = $1 WHERE id = $2`, newToken, sess.ID); err != nil {
		return Session{}, apperrors.DatabaseError("failed to regenerate session token", err)
	}

	sess.Token = newToken
	return sess, nil
}

func (s *SQLStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM perimeter_session WHERE token = $1`, token); err != nil {
		return apperrors.DatabaseError("failed to delete session", err)
	}
	return nil
}

// DeleteExpired removes every session whose expiry has passed and returns
// how many were removed.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM perimeter_session WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, apperrors.DatabaseError("failed to delete expired sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.DatabaseError("failed to count deleted sessions", err)
	}
	return n, nil
}

// generateToken returns 32 random bytes, base64url encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var _ Store = (*SQLStore)(nil)
