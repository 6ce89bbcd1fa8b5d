package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/freekieb7/go-perimeter/internal/session"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

const (
	CSRFField  = "csrf_token"
	CSRFHeader = "X-CSRF-Token"

	csrfSessionKey = "_csrf_token"
)

// CSRF binds a token to the session on safe requests and requires it back,
// as a form field or header, on unsafe ones. It must run after the session
// middleware.
func CSRF(sessions *Sessions, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "Session not found in context")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if sess.GetString(csrfSessionKey) == "" {
					csrfToken, err := generateCSRFToken()
					if err != nil {
						logger.ErrorContext(r.Context(), "Failed to generate CSRF token", "error", err)
						http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
						return
					}

					sess.Set(csrfSessionKey, csrfToken)
					if err := sessions.Save(w, r, sess); err != nil {
						response.PlainErrorResponse(r.Context(), w, err, logger)
						return
					}
				}
			default:
				expected := sess.GetString(csrfSessionKey)
				provided := r.Header.Get(CSRFHeader)
				if provided == "" {
					provided = r.PostFormValue(CSRFField)
				}

				if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
					logger.WarnContext(r.Context(), "CSRF validation failed",
						"path", r.URL.Path,
						"method", r.Method,
						"missing", provided == "")
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the token to embed in forms rendered for r.
func CSRFToken(r *http.Request) string {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return ""
	}
	return sess.GetString(csrfSessionKey)
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
