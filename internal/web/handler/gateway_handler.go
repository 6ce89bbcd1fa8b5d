package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/freekieb7/go-perimeter/internal/gate"
	"github.com/freekieb7/go-perimeter/internal/session"
	"github.com/freekieb7/go-perimeter/internal/web/middleware"
	"github.com/freekieb7/go-perimeter/internal/web/response"
	"github.com/freekieb7/go-perimeter/web"
)

// GatewayHandler serves the page visitors are sent to when they have no
// valid access token.
type GatewayHandler struct {
	Gate       *gate.Gate
	Sessions   *middleware.Sessions
	Logger     *slog.Logger
	TrustProxy bool

	gateway *template.Template
	landing *template.Template
}

type gatewayPage struct {
	Action          string
	CSRFToken       string
	Next            string
	Token           string
	Email           string
	Name            string
	RequireIdentity bool
	Granted         bool
	Errors          map[string]string
}

func NewGatewayHandler(g *gate.Gate, sessions *middleware.Sessions, trustProxy bool, logger *slog.Logger) (*GatewayHandler, error) {
	gateway, err := web.ParseTemplate("gateway.html")
	if err != nil {
		return nil, err
	}
	landing, err := web.ParseTemplate("landing.html")
	if err != nil {
		return nil, err
	}

	return &GatewayHandler{
		Gate:       g,
		Sessions:   sessions,
		Logger:     logger,
		TrustProxy: trustProxy,
		gateway:    gateway,
		landing:    landing,
	}, nil
}

// RegisterRoutes mounts the gateway page, wrapping both methods in page.
func (h *GatewayHandler) RegisterRoutes(mux *http.ServeMux, page func(http.Handler) http.Handler) {
	path := h.Gate.Config().GatewayPath

	mux.Handle("GET "+path, page(http.HandlerFunc(h.HandleGatewayGet)))
	mux.Handle("POST "+path, page(http.HandlerFunc(h.HandleGatewayPost)))
}

func (h *GatewayHandler) HandleGatewayGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		response.PlainErrorResponse(r.Context(), w, gate.ErrMisconfigured, h.Logger)
		return
	}

	_, granted, err := h.Gate.Current(r.Context(), sess)
	if err != nil {
		response.PlainErrorResponse(r.Context(), w, err, h.Logger)
		return
	}

	page := h.page(r)
	page.Next = r.URL.Query().Get("next")
	page.Granted = granted
	h.render(w, r, http.StatusOK, page)
}

func (h *GatewayHandler) HandleGatewayPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := session.FromContext(ctx)
	if !ok {
		response.PlainErrorResponse(ctx, w, gate.ErrMisconfigured, h.Logger)
		return
	}

	sub := gate.Submission{
		Token: r.PostFormValue(gate.FieldToken),
		Email: r.PostFormValue(gate.FieldEmail),
		Name:  r.PostFormValue(gate.FieldName),
		Next:  r.PostFormValue("next"),
	}

	result, err := h.Gate.Submit(ctx, sub, middleware.GateRequest(r, h.TrustProxy))
	if err != nil {
		var formErrs *gate.FormErrors
		if !errors.As(err, &formErrs) {
			response.PlainErrorResponse(ctx, w, err, h.Logger)
			return
		}

		page := h.page(r)
		page.Next = sub.Next
		page.Token = sub.Token
		page.Email = sub.Email
		page.Name = sub.Name
		for field, kind := range formErrs.Fields {
			page.Errors[field] = gate.Message(kind)
		}
		h.render(w, r, http.StatusBadRequest, page)
		return
	}

	sess.Set(h.Gate.Config().SessionKey, result.SessionValue)

	// A fresh session token on access prevents session fixation.
	if err := h.Sessions.Regenerate(w, r, sess); err != nil {
		response.PlainErrorResponse(ctx, w, err, h.Logger)
		return
	}
	if err := h.Sessions.Save(w, r, sess); err != nil {
		response.PlainErrorResponse(ctx, w, err, h.Logger)
		return
	}

	h.Logger.InfoContext(ctx, "Gateway access granted",
		"token_id", result.Token.ID,
		"usage_id", result.Usage.ID,
		"redirect", result.Redirect)
	response.Redirect(w, http.StatusFound, result.Redirect)
}

// HandleLanding is the built-in home page served when no upstream is
// configured.
func (h *GatewayHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		response.PlainErrorResponse(r.Context(), w, gate.ErrMisconfigured, h.Logger)
		return
	}

	data := map[string]any{"ExpiresOn": "-"}
	if t, granted, err := h.Gate.Current(r.Context(), sess); err != nil {
		response.PlainErrorResponse(r.Context(), w, err, h.Logger)
		return
	} else if granted {
		data["ExpiresOn"] = t.ExpiresOn.Format(time.DateOnly)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.landing.ExecuteTemplate(w, "base", data); err != nil {
		h.Logger.ErrorContext(r.Context(), "Failed to render landing page", "error", err)
	}
}

func (h *GatewayHandler) page(r *http.Request) gatewayPage {
	cfg := h.Gate.Config()
	return gatewayPage{
		Action:          cfg.GatewayPath,
		CSRFToken:       middleware.CSRFToken(r),
		RequireIdentity: cfg.RequireIdentity,
		Errors:          map[string]string{},
	}
}

func (h *GatewayHandler) render(w http.ResponseWriter, r *http.Request, status int, page gatewayPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.gateway.ExecuteTemplate(w, "base", page); err != nil {
		h.Logger.ErrorContext(r.Context(), "Failed to render gateway page", "error", err)
	}
}
