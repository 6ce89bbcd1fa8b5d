package gate

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedirectURL(t *testing.T) {
	assert.Equal(t, "/gateway?next=%2Fsomepath%2F", RedirectURL("/gateway", "/somepath/"))

	location := RedirectURL("/gateway", "/somepath/?important=param")
	u, err := url.Parse(location)
	assert.NoError(t, err)
	assert.Equal(t, "/somepath/?important=param", u.Query().Get("next"))
}

func TestResolveReturnURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /somepath/{$}", func(http.ResponseWriter, *http.Request) {})
	mux.HandleFunc("/gateway", func(http.ResponseWriter, *http.Request) {})
	routes := MuxResolver{Mux: mux}

	tests := []struct {
		name      string
		candidate string
		want      string
	}{
		{"empty", "", "/gateway"},
		{"known route", "/somepath/", "/somepath/"},
		{"query stripped for resolution", "/somepath/?important=param", "/somepath/?important=param"},
		{"unknown route", "/unknown/", "/gateway"},
		{"absolute url", "http://evil.example/somepath/", "/gateway"},
		{"scheme relative", "//evil.example/somepath/", "/gateway"},
		{"backslash", "/\\evil.example", "/gateway"},
		{"relative path", "somepath/", "/gateway"},
		{"javascript", "javascript:alert(1)", "/gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveReturnURL(tt.candidate, routes, "/gateway"))
		})
	}
}

func TestResolveReturnURL_NilResolver(t *testing.T) {
	assert.Equal(t, "/gateway", ResolveReturnURL("/somepath/", nil, "/gateway"))
}

func TestMuxResolver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /somepath/{$}", func(http.ResponseWriter, *http.Request) {})

	assert.True(t, MuxResolver{Mux: mux}.Resolves("/somepath/"))
	assert.False(t, MuxResolver{Mux: mux}.Resolves("/somepath/deeper"))
	assert.False(t, MuxResolver{}.Resolves("/somepath/"))
}
