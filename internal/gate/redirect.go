package gate

import (
	"net/http"
	"net/url"
	"strings"
)

// RouteResolver reports whether a path maps to a route of the application.
type RouteResolver interface {
	Resolves(path string) bool
}

// RouteResolverFunc adapts a function to RouteResolver.
type RouteResolverFunc func(path string) bool

func (f RouteResolverFunc) Resolves(path string) bool { return f(path) }

// MuxResolver resolves paths against the GET routes of a ServeMux.
type MuxResolver struct {
	Mux *http.ServeMux
}

func (m MuxResolver) Resolves(path string) bool {
	if m.Mux == nil {
		return false
	}
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}, Header: http.Header{}}
	_, pattern := m.Mux.Handler(req)
	return pattern != ""
}

// RedirectURL builds the gateway URL carrying requestURI as its next
// parameter.
func RedirectURL(gatewayPath, requestURI string) string {
	return gatewayPath + "?" + url.Values{"next": {requestURI}}.Encode()
}

// ResolveReturnURL returns candidate when it is a local path that resolves
// to a route, and fallback otherwise. The query string is ignored for
// resolution but kept in the result.
func ResolveReturnURL(candidate string, routes RouteResolver, fallback string) string {
	if candidate == "" || routes == nil {
		return fallback
	}
	if !strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, "//") || strings.ContainsAny(candidate, "\\\r\n") {
		return fallback
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}

	if !routes.Resolves(u.Path) {
		return fallback
	}
	return candidate
}

// requestURI is the path plus query string of a request.
func requestURI(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}
