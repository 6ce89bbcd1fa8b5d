package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/freekieb7/go-perimeter/internal/database"
	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
)

// Store is durable storage for tokens and their usage records.
type Store interface {
	Create(ctx context.Context, t Token) (Token, error)
	GetByValue(ctx context.Context, value string) (Token, error)
	Update(ctx context.Context, t Token) (Token, error)
	Delete(ctx context.Context, t Token) error
	List(ctx context.Context) ([]Token, error)
	RecordUsage(ctx context.Context, u UsageRecord) (UsageRecord, error)
	HasUsage(ctx context.Context, tokenID int64, clientIP, userAgent string) (bool, error)
	ListUsage(ctx context.Context, value string, limit int) ([]UsageRecord, error)
}

type SQLStore struct {
	DB    *database.Database
	Clock Clock
}

func NewSQLStore(db *database.Database, clock Clock) *SQLStore {
	return &SQLStore{
		DB:    db,
		Clock: clock,
	}
}

const tokenColumns = `id, token, is_active, expires_on, created_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(row scanner) (Token, error) {
	var t Token
	if err := row.Scan(&t.ID, &t.Value, &t.Active, &t.ExpiresOn, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Token{}, err
	}
	t.ExpiresOn = DateOf(t.ExpiresOn)
	return t, nil
}

// Create inserts a token. Value and ExpiresOn must already be set; the
// unique constraint on the value is the only collision check.
func (s *SQLStore) Create(ctx context.Context, t Token) (Token, error) {
	now := s.Clock.Now().UTC()
	t.ExpiresOn = DateOf(t.ExpiresOn)
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	query := `INSERT INTO perimeter_token (token, is_active, expires_on, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query, t.Value, t.Active, t.ExpiresOn, t.CreatedBy, t.CreatedAt, t.UpdatedAt).Scan(&t.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return Token{}, apperrors.Wrap(ErrDuplicateToken, apperrors.CodeDuplicateToken, fmt.Sprintf("token %q", MaskValue(t.Value)))
		}
		return Token{}, apperrors.DatabaseError("failed to create token", err)
	}
	return t, nil
}

func (s *SQLStore) GetByValue(ctx context.Context, value string) (Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM perimeter_token WHERE token = $1`
	t, err := scanToken(s.DB.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, apperrors.DatabaseError("failed to get token by value", err)
	}
	return t, nil
}

// Update persists the mutable fields and refreshes UpdatedAt.
func (s *SQLStore) Update(ctx context.Context, t Token) (Token, error) {
	t.ExpiresOn = DateOf(t.ExpiresOn)
	t.UpdatedAt = s.Clock.Now().UTC()

	result, err := s.DB.ExecContext(ctx, `UPDATE perimeter_token SET is_active = $1, expires_on = $2, updated_at = $3 WHERE id = $4`, t.Active, t.ExpiresOn, t.UpdatedAt, t.ID)
	if err != nil {
		return Token{}, apperrors.DatabaseError("failed to update token", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return Token{}, ErrTokenNotFound
	}
	return t, nil
}

func (s *SQLStore) Delete(ctx context.Context, t Token) error {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM perimeter_token WHERE id = $1`, t.ID)
	if err != nil {
		return apperrors.DatabaseError("failed to delete token", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Token, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+tokenColumns+` FROM perimeter_token ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list tokens", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("failed to scan token", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("failed to list tokens", err)
	}
	return tokens, nil
}

// RecordUsage appends an audit row. Timestamp is set to now when zero.
func (s *SQLStore) RecordUsage(ctx context.Context, u UsageRecord) (UsageRecord, error) {
	if u.Timestamp.IsZero() {
		u.Timestamp = s.Clock.Now().UTC()
	}
	if u.ClientIP == "" {
		u.ClientIP = UnknownClient
	}
	if u.ClientUserAgent == "" {
		u.ClientUserAgent = UnknownClient
	}

	query := `INSERT INTO perimeter_token_use (token_id, user_email, user_name, client_ip, client_user_agent, timestamp) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query, u.TokenID, u.Email, u.Name, u.ClientIP, u.ClientUserAgent, u.Timestamp).Scan(&u.ID); err != nil {
		return UsageRecord{}, apperrors.DatabaseError("failed to record token usage", err)
	}
	return u, nil
}

// HasUsage reports whether a usage record exists for the token from the
// given client. Empty provenance matches records stored as UnknownClient.
func (s *SQLStore) HasUsage(ctx context.Context, tokenID int64, clientIP, userAgent string) (bool, error) {
	if clientIP == "" {
		clientIP = UnknownClient
	}
	if userAgent == "" {
		userAgent = UnknownClient
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM perimeter_token_use WHERE token_id = $1 AND client_ip = $2 AND client_user_agent = $3)`
	if err := s.DB.QueryRowContext(ctx, query, tokenID, clientIP, userAgent).Scan(&exists); err != nil {
		return false, apperrors.DatabaseError("failed to check token usage", err)
	}
	return exists, nil
}

// ListUsage returns the most recent usage records of a token, newest first.
func (s *SQLStore) ListUsage(ctx context.Context, value string, limit int) ([]UsageRecord, error) {
	query := `SELECT u.id, u.token_id, t.token, u.user_email, u.user_name, u.client_ip, u.client_user_agent, u.timestamp
		FROM perimeter_token_use u JOIN perimeter_token t ON t.id = u.token_id
		WHERE t.token = $1 ORDER BY u.timestamp DESC, u.id DESC LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, value, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list token usage", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var u UsageRecord
		if err := rows.Scan(&u.ID, &u.TokenID, &u.TokenValue, &u.Email, &u.Name, &u.ClientIP, &u.ClientUserAgent, &u.Timestamp); err != nil {
			return nil, apperrors.DatabaseError("failed to scan token usage", err)
		}
		records = append(records, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("failed to list token usage", err)
	}
	return records, nil
}

var _ Store = (*SQLStore)(nil)

