package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/freekieb7/go-perimeter/internal/database"
	"github.com/freekieb7/go-perimeter/internal/database/databasetest"
	"github.com/freekieb7/go-perimeter/internal/gate"
	"github.com/freekieb7/go-perimeter/internal/session"
	"github.com/freekieb7/go-perimeter/internal/token"
	"github.com/freekieb7/go-perimeter/internal/web/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	handlerNow  = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)
)

type gatewayFixture struct {
	mux     *http.ServeMux
	service *token.Service
	db      *database.Database
}

func newGatewayFixture(t *testing.T, mutate func(*gate.Config)) gatewayFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := databasetest.New(t)
	clock := token.NewClock(time.UTC, func() time.Time { return handlerNow })
	service := token.NewService(token.NewSQLStore(db, clock), token.NewMemoryCache(clock), clock, token.DefaultConfig(), logger)
	sessions := middleware.NewSessions(session.NewSQLStore(db, session.DefaultTTL), false, logger)

	cfg := gate.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	routes := gate.RouteResolverFunc(func(path string) bool { return path == "/somepath/" })
	g, err := gate.New(cfg, service, routes, logger)
	require.NoError(t, err)

	h, err := NewGatewayHandler(g, sessions, false, logger)
	require.NoError(t, err)

	mux := http.NewServeMux()
	page := middleware.Chain(sessions.Middleware(), middleware.CSRF(sessions, logger))
	h.RegisterRoutes(mux, page)
	mux.Handle("/{$}", sessions.Middleware()(http.HandlerFunc(h.HandleLanding)))

	return gatewayFixture{mux: mux, service: service, db: db}
}

func (f gatewayFixture) usageCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM perimeter_token_use`).Scan(&n))
	return n
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// open loads the gateway page and returns the session cookie and CSRF token.
func (f gatewayFixture) open(t *testing.T, target string) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	m := csrfPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2)
	cookie := cookieNamed(rec, session.CookieName)
	require.NotNil(t, cookie)
	return cookie, m[1]
}

func (f gatewayFixture) submit(cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/gateway", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "gateway-test")
	req.RemoteAddr = "192.0.2.10:5555"
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestGateway_GetRendersForm(t *testing.T) {
	f := newGatewayFixture(t, nil)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gateway?next=%2Fsomepath%2F", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `name="next" value="/somepath/"`)
	assert.Contains(t, body, `name="token"`)
	assert.NotContains(t, body, `name="email"`)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestGateway_SubmitValidToken(t *testing.T) {
	f := newGatewayFixture(t, nil)
	_, err := f.service.CreateAccessToken(context.Background(), token.CreateParams{Value: "foobar"})
	require.NoError(t, err)

	cookie, csrf := f.open(t, "/gateway?next=%2Fsomepath%2F")
	rec := f.submit(cookie, url.Values{"csrf_token": {csrf}, "token": {"foobar"}, "next": {"/somepath/"}})

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/somepath/", rec.Header().Get("Location"))
	assert.Equal(t, 1, f.usageCount(t))

	regenerated := cookieNamed(rec, session.CookieName)
	require.NotNil(t, regenerated)
	assert.NotEqual(t, cookie.Value, regenerated.Value)

	// The regenerated session grants access to the landing page.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(regenerated)
	landing := httptest.NewRecorder()
	f.mux.ServeHTTP(landing, req)
	assert.Contains(t, landing.Body.String(), "valid until 2026-10-26")
}

func TestGateway_SubmitUnresolvableNextFallsBack(t *testing.T) {
	f := newGatewayFixture(t, nil)
	_, err := f.service.CreateAccessToken(context.Background(), token.CreateParams{Value: "foobar"})
	require.NoError(t, err)

	cookie, csrf := f.open(t, "/gateway")
	rec := f.submit(cookie, url.Values{"csrf_token": {csrf}, "token": {"foobar"}, "next": {"https://evil.example/"}})

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/gateway", rec.Header().Get("Location"))
}

func TestGateway_SubmitErrors(t *testing.T) {
	f := newGatewayFixture(t, nil)
	ctx := context.Background()
	_, err := f.service.CreateAccessToken(ctx, token.CreateParams{Value: "expired", ExpiresOn: token.Date(2026, 10, 18)})
	require.NoError(t, err)
	_, err = f.service.CreateAccessToken(ctx, token.CreateParams{Value: "inactive"})
	require.NoError(t, err)
	_, err = f.service.Deactivate(ctx, "inactive")
	require.NoError(t, err)

	tests := []struct {
		value   string
		message string
	}{
		{"", "This field is required."},
		{"unknown", "Token not found"},
		{"expired", "Token has expired"},
		{"inactive", "Token is inactive"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			cookie, csrf := f.open(t, "/gateway")
			rec := f.submit(cookie, url.Values{"csrf_token": {csrf}, "token": {tt.value}})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
	assert.Equal(t, 0, f.usageCount(t))
}

func TestGateway_RequireIdentity(t *testing.T) {
	f := newGatewayFixture(t, func(c *gate.Config) { c.RequireIdentity = true })
	_, err := f.service.CreateAccessToken(context.Background(), token.CreateParams{Value: "foobar"})
	require.NoError(t, err)

	cookie, csrf := f.open(t, "/gateway")
	rec := f.submit(cookie, url.Values{"csrf_token": {csrf}, "token": {"foobar"}, "email": {"not-an-email"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Enter a valid email address.")
	assert.Contains(t, body, "This field is required.")
	assert.Contains(t, body, `value="not-an-email"`)

	cookie, csrf = f.open(t, "/gateway")
	rec = f.submit(cookie, url.Values{"csrf_token": {csrf}, "token": {"foobar"}, "email": {"jo@example.com"}, "name": {"Jo"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, 1, f.usageCount(t))
}

func TestGateway_SubmitWithoutCSRF(t *testing.T) {
	f := newGatewayFixture(t, nil)

	cookie, _ := f.open(t, "/gateway")
	rec := f.submit(cookie, url.Values{"token": {"foobar"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
