package middleware

import (
	"log/slog"
	"net/http"

	"github.com/freekieb7/go-perimeter/internal/gate"
	"github.com/freekieb7/go-perimeter/internal/session"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

// GateRequest describes r to the gate. The session is attached only when
// the session middleware installed one.
func GateRequest(r *http.Request, trustProxy bool) gate.Request {
	req := gate.Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		EscapedPath: r.URL.EscapedPath(),
		RawQuery:    r.URL.RawQuery,
		Header:      r.Header,
		ClientIP:    GetClientIP(r, trustProxy),
		UserAgent:   r.UserAgent(),
	}
	if sess, ok := session.FromContext(r.Context()); ok {
		req.Session = sess
	}
	return req
}

// Perimeter lets a request through only when the gate allows it and
// otherwise redirects the visitor to the gateway page.
func Perimeter(g *gate.Gate, sessions *Sessions, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	sessionKey := g.Config().SessionKey

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := g.Decide(r.Context(), GateRequest(r, trustProxy))
			if err != nil {
				response.PlainErrorResponse(r.Context(), w, err, logger)
				return
			}

			if sess, ok := session.FromContext(r.Context()); ok {
				switch {
				case decision.ClearSession:
					sess.Delete(sessionKey)
					if !sess.IsNew() {
						if err := sessions.Save(w, r, sess); err != nil {
							logger.WarnContext(r.Context(), "Failed to clear perimeter token from session", "error", err)
						}
					}
				case decision.SessionValue != "":
					sess.Set(sessionKey, decision.SessionValue)
					if err := sessions.Save(w, r, sess); err != nil {
						logger.WarnContext(r.Context(), "Failed to store perimeter token in session", "error", err)
					}
				}
			}

			if !decision.Allowed() {
				response.Redirect(w, http.StatusFound, decision.Location)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
