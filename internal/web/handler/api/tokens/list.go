package tokens

import (
	"net/http"
	"strconv"

	"github.com/freekieb7/go-perimeter/internal/web/handler/api/shared"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

// HandleListTokens handles GET /api/tokens
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statuses, err := h.Tokens.List(ctx)
	if err != nil {
		response.ErrorResponse(ctx, w, err, h.Logger)
		return
	}

	resp := shared.ListTokensResponse{Tokens: make([]shared.TokenResponse, 0, len(statuses))}
	for _, s := range statuses {
		resp.Tokens = append(resp.Tokens, shared.NewTokenResponse(s))
	}

	response.JSONResponse(w, http.StatusOK, response.APIResponse{
		Code:    http.StatusOK,
		Status:  shared.StatusSuccess,
		Message: shared.MsgTokensRetrieved,
		Data:    resp,
	})
}

// HandleListUsage handles GET /api/tokens/{value}/usage
func (h *Handler) HandleListUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := shared.DefaultUsageLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			response.ValidationErrorResponse(ctx, w, shared.ErrInvalidLimit, map[string]string{"limit": limitStr}, h.Logger)
			return
		}
		limit = min(l, shared.MaxUsageLimit)
	}

	records, err := h.Tokens.Usage(ctx, r.PathValue("value"), limit)
	if err != nil {
		response.ErrorResponse(ctx, w, err, h.Logger)
		return
	}

	resp := shared.ListUsageResponse{Usage: make([]shared.UsageResponse, 0, len(records))}
	for _, u := range records {
		resp.Usage = append(resp.Usage, shared.NewUsageResponse(u))
	}

	response.JSONResponse(w, http.StatusOK, response.APIResponse{
		Code:    http.StatusOK,
		Status:  shared.StatusSuccess,
		Message: shared.MsgUsageRetrieved,
		Data:    resp,
	})
}
