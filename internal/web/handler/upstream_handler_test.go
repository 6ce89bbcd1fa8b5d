package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamHandler_Forwards(t *testing.T) {
	var got *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		io.WriteString(w, "protected content")
	}))
	defer upstream.Close()

	h, err := NewUpstreamHandler(upstream.URL, []string{"X-Perimeter-Token"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://site.example/docs/page?x=1", nil)
	req.Header.Set("X-Perimeter-Token", "secret")
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected content", rec.Body.String())
	require.NotNil(t, got)
	assert.Equal(t, "/docs/page", got.URL.Path)
	assert.Equal(t, "x=1", got.URL.RawQuery)
	assert.Equal(t, "site.example", got.Host)
	assert.Empty(t, got.Header.Get("X-Perimeter-Token"))
	assert.Equal(t, "text/html", got.Header.Get("Accept"))
	assert.NotEmpty(t, got.Header.Get("X-Forwarded-For"))
}

func TestUpstreamHandler_Unreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	h, err := NewUpstreamHandler(target, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUpstreamHandler_InvalidTarget(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, target := range []string{"localhost:3000", "ftp://files.example", "://bad"} {
		_, err := NewUpstreamHandler(target, nil, logger)
		assert.Error(t, err, target)
	}
}
