package gate

import (
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
)

// BypassFunc reports whether a request skips the gate entirely.
type BypassFunc func(r Request) bool

// Config is the per-gate configuration. Every gate instance carries its
// own; nothing is read from globals. QueryParam enables token presentation
// in the query string when set.
type Config struct {
	Enabled         bool
	SessionKey      string
	HeaderName      string
	QueryParam      string
	GatewayPath     string
	Bypass          BypassFunc
	RequireIdentity bool
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		SessionKey:  "perimeter",
		HeaderName:  "X-Perimeter-Token",
		GatewayPath: "/gateway",
	}
}

// Validate fills the bypass default and rejects unusable settings.
func (c *Config) Validate() error {
	if c.SessionKey == "" {
		return apperrors.ConfigError("perimeter session key must not be empty", nil)
	}
	if !strings.HasPrefix(c.GatewayPath, "/") {
		return apperrors.ConfigError("perimeter gateway path must start with '/'", nil)
	}
	if c.Bypass == nil {
		c.Bypass = PathBypass(c.GatewayPath)
	}
	return nil
}

// PathBypass lets the gateway page itself through, plus every path equal
// to or below one of prefixes.
func PathBypass(gatewayPath string, prefixes ...string) BypassFunc {
	return func(r Request) bool {
		if r.Path == gatewayPath {
			return true
		}
		for _, prefix := range prefixes {
			if prefix == "" {
				continue
			}
			if r.Path == prefix || strings.HasPrefix(r.Path, strings.TrimSuffix(prefix, "/")+"/") {
				return true
			}
		}
		return false
	}
}

// LocalBypass narrows bypass to requests a route of mux serves itself. A
// request whose only match is the fallback pattern, such as the catch-all
// upstream proxy, is gated even when bypass exempts its path.
func LocalBypass(mux *http.ServeMux, fallback string, bypass BypassFunc) BypassFunc {
	return func(r Request) bool {
		if mux == nil || !bypass(r) {
			return false
		}

		method := r.Method
		if method == "" {
			method = http.MethodGet
		}
		req := &http.Request{
			Method: method,
			URL:    &url.URL{Path: r.Path, RawPath: r.EscapedPath},
			Header: http.Header{},
		}
		_, pattern := mux.Handler(req)
		return pattern != "" && pattern != fallback
	}
}
