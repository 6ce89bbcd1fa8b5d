package token

import (
	"fmt"
	"time"

	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
)

// MaxValueLength bounds the length of a token value.
const MaxValueLength = 50

// UnknownClient is recorded when a provenance field cannot be observed.
const UnknownClient = "unknown"

var (
	ErrTokenNotFound  = apperrors.NotFoundError("token not found", nil)
	ErrDuplicateToken = apperrors.DuplicateTokenError("token already exists", nil)
	ErrTokenExpired   = apperrors.TokenExpiredError("token has expired", nil)
	ErrTokenInactive  = apperrors.TokenInactiveError("token is inactive", nil)
	ErrEmptyToken     = apperrors.EmptyTokenError("cannot record use of an empty token", nil)
)

// Token grants site-wide access until it expires or is deactivated.
type Token struct {
	ID        int64     `json:"id"`
	Value     string    `json:"token"`
	Active    bool      `json:"is_active"`
	ExpiresOn time.Time `json:"expires_on"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageRecord is the audit entry written when a token is presented.
type UsageRecord struct {
	ID              int64     `json:"id"`
	TokenID         int64     `json:"token_id"`
	TokenValue      string    `json:"token"`
	Email           string    `json:"user_email,omitempty"`
	Name            string    `json:"user_name,omitempty"`
	ClientIP        string    `json:"client_ip"`
	ClientUserAgent string    `json:"client_user_agent"`
	Timestamp       time.Time `json:"timestamp"`
}

// Presentation describes where a token was presented from.
type Presentation struct {
	ClientIP        string
	ClientUserAgent string
	Email           string
	Name            string
}

type State int

const (
	StateActiveValid State = iota
	StateActiveExpired
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateActiveValid:
		return "valid"
	case StateActiveExpired:
		return "expired"
	case StateInactive:
		return "inactive"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a token annotated with its state at listing time.
type Status struct {
	Token         Token `json:"token"`
	State         State `json:"state"`
	DaysRemaining int   `json:"days_remaining"`
}

func (s Status) String() string {
	switch s.State {
	case StateActiveValid:
		return fmt.Sprintf("%s - valid until %s", s.Token.Value, s.Token.ExpiresOn.Format(time.DateOnly))
	case StateInactive:
		return fmt.Sprintf("%s - inactive", s.Token.Value)
	case StateActiveExpired:
		return fmt.Sprintf("%s - expired on %s", s.Token.Value, s.Token.ExpiresOn.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s - invalid", s.Token.Value)
}

// Date returns the civil date as midnight UTC, the form ExpiresOn is kept in.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) time.Time {
	return Date(t.Date())
}
