package shared

import (
	"log/slog"

	"github.com/freekieb7/go-perimeter/internal/config"
	"github.com/freekieb7/go-perimeter/internal/token"
)

// BaseHandler contains the common dependencies for all API handlers
type BaseHandler struct {
	Config *config.Config
	Logger *slog.Logger
	Tokens *token.Service
}

// NewBaseHandler creates a new base handler with all dependencies
func NewBaseHandler(cfg *config.Config, logger *slog.Logger, tokens *token.Service) BaseHandler {
	return BaseHandler{
		Config: cfg,
		Logger: logger,
		Tokens: tokens,
	}
}
