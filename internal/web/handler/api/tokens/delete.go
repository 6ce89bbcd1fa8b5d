package tokens

import (
	"net/http"

	"github.com/freekieb7/go-perimeter/internal/web/handler/api/shared"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

// HandleDeleteToken handles DELETE /api/tokens/{value}. The token's usage
// records go with it.
func (h *Handler) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Tokens.Purge(ctx, r.PathValue("value")); err != nil {
		response.ErrorResponse(ctx, w, err, h.Logger)
		return
	}

	response.JSONResponse(w, http.StatusOK, response.APIResponse{
		Code:    http.StatusOK,
		Status:  shared.StatusSuccess,
		Message: shared.MsgTokenDeleted,
	})
}
