package tokens

import (
	"github.com/freekieb7/go-perimeter/internal/web/handler/api/shared"
)

// Handler serves the access token administration API
type Handler struct {
	shared.BaseHandler
}

// NewHandler creates a new token handler
func NewHandler(base shared.BaseHandler) *Handler {
	return &Handler{
		BaseHandler: base,
	}
}
