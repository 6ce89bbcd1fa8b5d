package middleware

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the address of the client. Forwarding headers are
// only honoured when the server sits behind a trusted proxy.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// X-Forwarded-For: client, proxy1, proxy2
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
