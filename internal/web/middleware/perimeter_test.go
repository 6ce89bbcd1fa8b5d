package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/freekieb7/go-perimeter/internal/database"
	"github.com/freekieb7/go-perimeter/internal/database/databasetest"
	"github.com/freekieb7/go-perimeter/internal/gate"
	"github.com/freekieb7/go-perimeter/internal/session"
	"github.com/freekieb7/go-perimeter/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var perimeterNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type perimeterFixture struct {
	handler  http.Handler
	sessions *Sessions
	service  *token.Service
	db       *database.Database
}

func newPerimeterFixture(t *testing.T) perimeterFixture {
	t.Helper()

	db := databasetest.New(t)
	clock := token.NewClock(time.UTC, func() time.Time { return perimeterNow })
	service := token.NewService(token.NewSQLStore(db, clock), token.NewMemoryCache(clock), clock, token.DefaultConfig(), discardLogger)
	sessions := NewSessions(session.NewSQLStore(db, session.DefaultTTL), false, discardLogger)

	cfg := gate.DefaultConfig()
	cfg.QueryParam = "token"
	cfg.Bypass = gate.PathBypass(cfg.GatewayPath, "/health")
	g, err := gate.New(cfg, service, gate.RouteResolverFunc(func(string) bool { return true }), discardLogger)
	require.NoError(t, err)

	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("protected"))
	})

	return perimeterFixture{
		handler:  Chain(sessions.Middleware(), Perimeter(g, sessions, false, discardLogger))(protected),
		sessions: sessions,
		service:  service,
		db:       db,
	}
}

func (f perimeterFixture) usageCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM perimeter_token_use`).Scan(&n))
	return n
}

func (f perimeterFixture) sessionCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM perimeter_session`).Scan(&n))
	return n
}

func (f perimeterFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestPerimeter_RedirectsWithoutToken(t *testing.T) {
	f := newPerimeterFixture(t)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/somepath/?page=2", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/gateway?next=%2Fsomepath%2F%3Fpage%3D2", rec.Header().Get("Location"))
}

func TestPerimeter_BypassAndGateway(t *testing.T) {
	f := newPerimeterFixture(t)

	for _, path := range []string{"/gateway", "/health", "/health/ready"} {
		rec := f.serve(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPerimeter_RedirectKeepsEscapedPath(t *testing.T) {
	f := newPerimeterFixture(t)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/files/a%3Fb%2Fc?x=1", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/files/a%3Fb%2Fc?x=1", u.Query().Get("next"))
}

func TestPerimeter_HeaderTokenIsStateless(t *testing.T) {
	f := newPerimeterFixture(t)
	tok, err := f.service.CreateAccessToken(context.Background(), token.CreateParams{Value: "abc"})
	require.NoError(t, err)

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/somepath/", nil)
		req.Header.Set("X-Perimeter-Token", tok.Value)
		rec := f.serve(req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "protected", rec.Body.String())
		assert.Nil(t, sessionCookie(t, rec))
	}

	assert.Equal(t, 1, f.usageCount(t))
	assert.Equal(t, 0, f.sessionCount(t))
}

func TestPerimeter_QueryTokenIsStoredInSession(t *testing.T) {
	f := newPerimeterFixture(t)
	tok, err := f.service.CreateAccessToken(context.Background(), token.CreateParams{Value: "abc"})
	require.NoError(t, err)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/somepath/?token="+tok.Value, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected", rec.Body.String())
	assert.Equal(t, 1, f.usageCount(t))

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)

	// The session now carries the token; no further usage is recorded.
	req := httptest.NewRequest(http.MethodGet, "/somepath/", nil)
	req.AddCookie(cookie)
	rec = f.serve(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.usageCount(t))
}

func TestPerimeter_DeactivatedTokenClearsSession(t *testing.T) {
	f := newPerimeterFixture(t)
	tok, err := f.service.CreateAccessToken(context.Background(), token.CreateParams{Value: "abc"})
	require.NoError(t, err)

	cookie := sessionCookie(t, f.serve(httptest.NewRequest(http.MethodGet, "/somepath/?token="+tok.Value, nil)))
	require.NotNil(t, cookie)

	_, err = f.service.Deactivate(context.Background(), tok.Value)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/somepath/", nil)
	req.AddCookie(cookie)
	rec := f.serve(req)
	assert.Equal(t, http.StatusFound, rec.Code)

	sess, err := f.sessions.Store.GetSessionByToken(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Empty(t, sess.GetString("perimeter"))
}

func TestPerimeter_MissingSessionIsServerError(t *testing.T) {
	f := newPerimeterFixture(t)
	g, err := gate.New(gate.DefaultConfig(), f.service, nil, discardLogger)
	require.NoError(t, err)

	h := Perimeter(g, f.sessions, false, discardLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/somepath/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
