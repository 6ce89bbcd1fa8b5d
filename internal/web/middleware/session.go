package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/freekieb7/go-perimeter/internal/session"
	"github.com/freekieb7/go-perimeter/internal/web/response"
)

// Sessions loads the visitor's session for every request and writes it
// back on demand. A session is only persisted, and its cookie only set,
// once something calls Save or Regenerate.
type Sessions struct {
	Store  session.Store
	Secure bool
	Logger *slog.Logger
}

func NewSessions(store session.Store, secure bool, logger *slog.Logger) *Sessions {
	return &Sessions{
		Store:  store,
		Secure: secure,
		Logger: logger,
	}
}

// Middleware installs a *session.Session in the request context.
func (s *Sessions) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := s.load(r)
			if err != nil {
				response.PlainErrorResponse(r.Context(), w, err, s.Logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), &sess)))
		})
	}
}

func (s *Sessions) load(r *http.Request) (session.Session, error) {
	cookie, err := r.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		sess, err := s.Store.GetSessionByToken(r.Context(), cookie.Value)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return session.Session{}, err
		}
		s.Logger.DebugContext(r.Context(), "Session cookie refers to an unknown or expired session")
	}

	return s.Store.NewSession()
}

// Save persists sess, setting the cookie when it was not stored before.
func (s *Sessions) Save(w http.ResponseWriter, r *http.Request, sess *session.Session) error {
	isNew := sess.IsNew()

	saved, err := s.Store.SaveSession(r.Context(), *sess)
	if err != nil {
		return err
	}
	*sess = saved

	if isNew {
		s.setCookie(w, saved)
	}
	return nil
}

// Regenerate persists sess under a fresh token and reissues the cookie.
func (s *Sessions) Regenerate(w http.ResponseWriter, r *http.Request, sess *session.Session) error {
	if sess.IsNew() {
		return s.Save(w, r, sess)
	}

	regenerated, err := s.Store.RegenerateSession(r.Context(), *sess)
	if err != nil {
		return err
	}
	*sess = regenerated

	s.setCookie(w, regenerated)
	return nil
}

func (s *Sessions) setCookie(w http.ResponseWriter, sess session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
