package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/freekieb7/go-perimeter/internal/config"
	"github.com/freekieb7/go-perimeter/internal/web/response"
	"golang.org/x/crypto/bcrypt"
)

// SecurityHeadersConfig allows customization of security headers
type SecurityHeadersConfig struct {
	// Enable HSTS (HTTP Strict Transport Security)
	EnableHSTS bool
	// HSTS max age in seconds
	HSTSMaxAge int
	// Include subdomains in HSTS
	HSTSIncludeSubdomains bool
	// Content Security Policy
	CSP string
	// Referrer Policy
	ReferrerPolicy string
	// Permissions Policy
	PermissionsPolicy string
	// Responses under these path prefixes must never be cached
	NoStorePrefixes []string
}

// SecurityHeadersFromConfig creates SecurityHeadersConfig from the loaded configuration
func SecurityHeadersFromConfig(cfg config.Security, noStorePrefixes ...string) SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:            cfg.EnableHSTS,
		HSTSMaxAge:            cfg.HSTSMaxAge,
		HSTSIncludeSubdomains: cfg.HSTSIncludeSubdomains,
		CSP:                   cfg.ContentSecurityPolicy,
		ReferrerPolicy:        cfg.ReferrerPolicy,
		PermissionsPolicy:     cfg.PermissionsPolicy,
		NoStorePrefixes:       noStorePrefixes,
	}
}

// DefaultSecurityHeaders returns a secure default configuration
func DefaultSecurityHeaders() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:            true,
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		CSP:                   "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; form-action 'self'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=(), usb=()",
	}
}

func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			if config.EnableHSTS {
				hstsValue := fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
				if config.HSTSIncludeSubdomains {
					hstsValue += "; includeSubDomains"
				}
				w.Header().Set("Strict-Transport-Security", hstsValue)
			}

			if config.CSP != "" {
				w.Header().Set("Content-Security-Policy", config.CSP)
			}

			if config.ReferrerPolicy != "" {
				w.Header().Set("Referrer-Policy", config.ReferrerPolicy)
			}

			if config.PermissionsPolicy != "" {
				w.Header().Set("Permissions-Policy", config.PermissionsPolicy)
			}

			w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
			w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")

			if hasAnyPrefix(r.URL.Path, config.NoStorePrefixes) {
				w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, private")
				w.Header().Set("Pragma", "no-cache")
				w.Header().Set("Expires", "0")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// APIKey requires the X-API-Key header to match apiKey. An empty apiKey
// rejects every request.
func APIKey(apiKey string) func(http.Handler) http.Handler {
	return requireAPIKey(func(provided string) bool {
		return apiKey != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) == 1
	})
}

// APIKeyHash is APIKey for a bcrypt hash of the key.
func APIKeyHash(hash string) func(http.Handler) http.Handler {
	return requireAPIKey(func(provided string) bool {
		return hash != "" && provided != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(provided)) == nil
	})
}

func requireAPIKey(valid func(provided string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !valid(r.Header.Get("X-API-Key")) {
				w.Header().Set("Connection", "close")
				response.JSONResponse(w, http.StatusUnauthorized, response.APIResponse{
					Code:    http.StatusUnauthorized,
					Message: "Invalid API Key",
					Status:  "UNAUTHORIZED",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize limits request bodies to limit bytes.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
