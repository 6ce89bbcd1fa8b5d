package shared

import (
	"time"

	"github.com/freekieb7/go-perimeter/internal/token"
)

// Common API response types and constants

const (
	// Error messages
	ErrInvalidRequestBody = "Invalid request body"
	ErrInvalidExpiryDate  = "expires_on must be a date formatted as YYYY-MM-DD"
	ErrInvalidLimit       = "limit must be a positive integer"

	// Status codes
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"

	// Success messages
	MsgTokenCreated    = "Access token created successfully"
	MsgTokenUpdated    = "Access token updated successfully"
	MsgTokenDeleted    = "Access token deleted successfully"
	MsgTokensRetrieved = "Access tokens retrieved successfully"
	MsgUsageRetrieved  = "Access token usage retrieved successfully"

	DefaultUsageLimit = 50
	MaxUsageLimit     = 500

	DateLayout = time.DateOnly
)

// CreateTokenRequest is the body of POST /api/tokens. Every field is
// optional.
type CreateTokenRequest struct {
	Token         string `json:"token"`
	ExpiresOn     string `json:"expires_on"`
	ExpiresInDays int    `json:"expires_in_days"`
	CreatedBy     string `json:"created_by"`
}

// ExtendTokenRequest is the body of POST /api/tokens/{value}/extend.
type ExtendTokenRequest struct {
	Days int `json:"days"`
}

type TokenResponse struct {
	ID            int64  `json:"id"`
	Token         string `json:"token"`
	IsActive      bool   `json:"is_active"`
	ExpiresOn     string `json:"expires_on"`
	CreatedBy     string `json:"created_by,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	State         string `json:"state"`
	DaysRemaining int    `json:"days_remaining"`
	Summary       string `json:"summary"`
}

type ListTokensResponse struct {
	Tokens []TokenResponse `json:"tokens"`
}

type UsageResponse struct {
	ID              int64  `json:"id"`
	Token           string `json:"token"`
	UserEmail       string `json:"user_email,omitempty"`
	UserName        string `json:"user_name,omitempty"`
	ClientIP        string `json:"client_ip"`
	ClientUserAgent string `json:"client_user_agent"`
	Timestamp       string `json:"timestamp"`
}

type ListUsageResponse struct {
	Usage []UsageResponse `json:"usage"`
}

// NewTokenResponse renders a token with its state at listing time.
func NewTokenResponse(s token.Status) TokenResponse {
	t := s.Token
	return TokenResponse{
		ID:            t.ID,
		Token:         t.Value,
		IsActive:      t.Active,
		ExpiresOn:     t.ExpiresOn.Format(DateLayout),
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.UTC().Format(time.RFC3339),
		State:         s.State.String(),
		DaysRemaining: s.DaysRemaining,
		Summary:       s.String(),
	}
}

func NewUsageResponse(u token.UsageRecord) UsageResponse {
	return UsageResponse{
		ID:              u.ID,
		Token:           u.TokenValue,
		UserEmail:       u.Email,
		UserName:        u.Name,
		ClientIP:        u.ClientIP,
		ClientUserAgent: u.ClientUserAgent,
		Timestamp:       u.Timestamp.UTC().Format(time.RFC3339),
	}
}
