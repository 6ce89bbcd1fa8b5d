package tokens

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/freekieb7/go-perimeter/internal/token"
	"github.com/freekieb7/go-perimeter/internal/web/handler/api/shared"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

// HandleDeactivateToken handles POST /api/tokens/{value}/deactivate
func (h *Handler) HandleDeactivateToken(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.Tokens.Deactivate)
}

// HandleActivateToken handles POST /api/tokens/{value}/activate
func (h *Handler) HandleActivateToken(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.Tokens.Activate)
}

// HandleExtendToken handles POST /api/tokens/{value}/extend
func (h *Handler) HandleExtendToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req shared.ExtendTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.WarnContext(ctx, "Failed to decode extend token request", "error", err)
		response.ValidationErrorResponse(ctx, w, shared.ErrInvalidRequestBody, nil, h.Logger)
		return
	}

	h.update(w, r, func(ctx context.Context, value string) (token.Token, error) {
		return h.Tokens.Extend(ctx, value, req.Days)
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, mutate func(context.Context, string) (token.Token, error)) {
	ctx := r.Context()

	t, err := mutate(ctx, r.PathValue("value"))
	if err != nil {
		response.ErrorResponse(ctx, w, err, h.Logger)
		return
	}

	response.JSONResponse(w, http.StatusOK, response.APIResponse{
		Code:    http.StatusOK,
		Status:  shared.StatusSuccess,
		Message: shared.MsgTokenUpdated,
		Data:    shared.NewTokenResponse(h.Tokens.Clock().Status(t)),
	})
}
