package api

import (
	"net/http"

	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
	"github.com/freekieb7/go-perimeter/internal/web/handler/api/shared"
	"github.com/freekieb7/go-perimeter/internal/web/handler/api/tokens"
	"github.com/freekieb7/go-perimeter/internal/web/middleware"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

const maxRequestBody = 1 << 20

// Handler aggregates all API handlers and provides the main entry point
type Handler struct {
	shared.BaseHandler
	TokensHandler *tokens.Handler
}

// NewHandler creates a new API handler with all sub-handlers
func NewHandler(base shared.BaseHandler) *Handler {
	return &Handler{
		BaseHandler:   base,
		TokensHandler: tokens.NewHandler(base),
	}
}

// RegisterRoutes registers all API routes with the provided mux. Every
// route requires the configured API key.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	secure := middleware.Chain(
		middleware.MaxBodySize(maxRequestBody),
		h.authenticate(),
	)

	mux.Handle("GET /api/tokens", secure(http.HandlerFunc(h.TokensHandler.HandleListTokens)))
	mux.Handle("POST /api/tokens", secure(http.HandlerFunc(h.TokensHandler.HandleCreateToken)))
	mux.Handle("DELETE /api/tokens/{value}", secure(http.HandlerFunc(h.TokensHandler.HandleDeleteToken)))
	mux.Handle("POST /api/tokens/{value}/deactivate", secure(http.HandlerFunc(h.TokensHandler.HandleDeactivateToken)))
	mux.Handle("POST /api/tokens/{value}/activate", secure(http.HandlerFunc(h.TokensHandler.HandleActivateToken)))
	mux.Handle("POST /api/tokens/{value}/extend", secure(http.HandlerFunc(h.TokensHandler.HandleExtendToken)))
	mux.Handle("GET /api/tokens/{value}/usage", secure(http.HandlerFunc(h.TokensHandler.HandleListUsage)))

	// The whole namespace stays local so a bypassed path never reaches
	// the upstream.
	mux.Handle("/api/", secure(http.HandlerFunc(h.handleNotFound)))
}

// authenticate prefers the hashed key when one is configured.
func (h *Handler) authenticate() func(http.Handler) http.Handler {
	if h.Config.Security.APIKeyHash != "" {
		return middleware.APIKeyHash(h.Config.Security.APIKeyHash)
	}
	return middleware.APIKey(h.Config.Security.APIKey)
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	response.ErrorResponse(r.Context(), w, apperrors.NotFoundError("no such API route", nil), h.Logger)
}
