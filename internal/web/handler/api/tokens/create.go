package tokens

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/freekieb7/go-perimeter/internal/token"
	"github.com/freekieb7/go-perimeter/internal/web/handler/api/shared"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

// HandleCreateToken handles POST /api/tokens
func (h *Handler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req shared.CreateTokenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Logger.WarnContext(ctx, "Failed to decode create token request", "error", err)
			response.ValidationErrorResponse(ctx, w, shared.ErrInvalidRequestBody, nil, h.Logger)
			return
		}
	}

	params := token.CreateParams{
		Value:         req.Token,
		ExpiresInDays: req.ExpiresInDays,
		CreatedBy:     req.CreatedBy,
	}
	if req.ExpiresOn != "" {
		expiresOn, err := time.Parse(shared.DateLayout, req.ExpiresOn)
		if err != nil {
			response.ValidationErrorResponse(ctx, w, shared.ErrInvalidExpiryDate, map[string]string{"expires_on": req.ExpiresOn}, h.Logger)
			return
		}
		params.ExpiresOn = expiresOn
	}

	t, err := h.Tokens.CreateAccessToken(ctx, params)
	if err != nil {
		response.ErrorResponse(ctx, w, err, h.Logger)
		return
	}

	response.JSONResponse(w, http.StatusCreated, response.APIResponse{
		Code:    http.StatusCreated,
		Status:  shared.StatusSuccess,
		Message: shared.MsgTokenCreated,
		Data:    shared.NewTokenResponse(h.Tokens.Clock().Status(t)),
	})
}
