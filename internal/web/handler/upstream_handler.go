package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
)

// NewUpstreamHandler forwards requests that passed the gate to the
// protected site. stripHeaders are removed from the forwarded request so
// presented tokens do not leak upstream.
func NewUpstreamHandler(target string, stripHeaders []string, logger *slog.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, apperrors.ConfigError(fmt.Sprintf("invalid upstream URL %q", target), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, apperrors.ConfigError(fmt.Sprintf("upstream URL %q must be absolute http(s)", target), nil)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
			for _, name := range stripHeaders {
				if name != "" {
					pr.Out.Header.Del(name)
				}
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "Upstream request failed",
				"error", err,
				"upstream", u.Host,
				"path", r.URL.Path)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}, nil
}
