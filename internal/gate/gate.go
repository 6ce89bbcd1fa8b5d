// Package gate decides, per request, whether a visitor may pass the
// perimeter or must be sent to the gateway page first.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
	"github.com/freekieb7/go-perimeter/internal/metrics"
	"github.com/freekieb7/go-perimeter/internal/token"
)

// ErrMisconfigured is returned when a request reaches the gate without a
// session. It means the server is wired wrongly, not that the visitor is.
var ErrMisconfigured = apperrors.MisconfiguredError("request has no session, the session middleware must run before the perimeter", nil)

// Tokens is what the gate needs from the token service.
type Tokens interface {
	Resolve(ctx context.Context, value string) (token.Lookup, error)
	Check(ctx context.Context, value string) (token.Token, error)
	RecordUse(ctx context.Context, lookup token.Lookup, p token.Presentation) (token.UsageRecord, error)
	HasRecordedUse(ctx context.Context, lookup token.Lookup, p token.Presentation) (bool, error)
	Clock() token.Clock
}

// Session is read-only access to the visitor's session.
type Session interface {
	GetString(key string) string
}

// Request describes an inbound request independently of the HTTP server.
// A nil Session means the server provides no session support. Path is
// decoded; EscapedPath, when set, is the path as the client sent it.
type Request struct {
	Method      string
	Path        string
	EscapedPath string
	RawQuery    string
	Header      http.Header
	Session     Session
	ClientIP    string
	UserAgent   string
}

// uri is the escaped path and query string, used as the return target.
func (r Request) uri() string {
	if r.EscapedPath != "" {
		return requestURI(r.EscapedPath, r.RawQuery)
	}
	return requestURI(r.Path, r.RawQuery)
}

func (r Request) presentation() token.Presentation {
	return token.Presentation{
		ClientIP:        r.ClientIP,
		ClientUserAgent: r.UserAgent,
	}
}

// Source names where a token value was found.
type Source int

const (
	SourceNone Source = iota
	SourceHeader
	SourceSession
	SourceQuery
	SourceForm
)

func (s Source) String() string {
	switch s {
	case SourceHeader:
		return "header"
	case SourceSession:
		return "session"
	case SourceQuery:
		return "query"
	case SourceForm:
		return "form"
	default:
		return "none"
	}
}

type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeBypass
	OutcomeDisabled
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBypass:
		return "bypass"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "allow"
	}
}

// Decision is the gate's verdict on one request. When SessionValue is set
// the caller stores it in the session under the configured key; when
// ClearSession is set the caller removes that key.
type Decision struct {
	Outcome      Outcome
	Source       Source
	Location     string
	SessionValue string
	ClearSession bool
}

func (d Decision) Allowed() bool {
	return d.Outcome != OutcomeRedirect
}

type Gate struct {
	config Config
	tokens Tokens
	audit  *AuditRecorder
	routes RouteResolver
	logger *slog.Logger
}

// New validates config and builds a gate. routes decides which return
// URLs are honored after a gateway submission.
func New(config Config, tokens Tokens, routes RouteResolver, logger *slog.Logger) (*Gate, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Gate{
		config: config,
		tokens: tokens,
		audit:  NewAuditRecorder(tokens, logger),
		routes: routes,
		logger: logger,
	}, nil
}

func (g *Gate) Config() Config {
	return g.config
}

// Decide runs the gate for one request. Only storage failures and a
// missing session are errors; an unknown, inactive or expired token is a
// redirect.
func (g *Gate) Decide(ctx context.Context, req Request) (Decision, error) {
	if !g.config.Enabled {
		return g.decided(Decision{Outcome: OutcomeDisabled}), nil
	}

	if g.config.Bypass(req) {
		return g.decided(Decision{Outcome: OutcomeBypass}), nil
	}

	if req.Session == nil {
		return Decision{}, ErrMisconfigured
	}

	sessionValue := req.Session.GetString(g.config.SessionKey)
	value, source := g.extract(req, sessionValue)

	lookup, err := g.tokens.Resolve(ctx, value)
	if err != nil {
		return Decision{}, err
	}

	if !lookup.Valid(g.tokens.Clock()) {
		g.logger.DebugContext(ctx, "Perimeter token rejected",
			"path", req.Path,
			"source", source.String(),
			"token", token.MaskValue(value))
		return g.decided(Decision{
			Outcome:      OutcomeRedirect,
			Source:       source,
			Location:     RedirectURL(g.config.GatewayPath, req.uri()),
			ClearSession: source == SourceSession,
		}), nil
	}

	d := Decision{Outcome: OutcomeAllow, Source: source}

	switch {
	case source == SourceQuery && value != sessionValue:
		// A new query value is recorded once and kept in the session.
		if _, err := g.audit.Record(ctx, lookup, req.presentation(), source); err != nil {
			return Decision{}, err
		}
		d.SessionValue = value
	case source == SourceHeader:
		// Header presentations never touch the session. The first one from
		// each client is recorded; the usage log itself tells repeats apart.
		p := req.presentation()
		seen, err := g.tokens.HasRecordedUse(ctx, lookup, p)
		if err != nil {
			return Decision{}, err
		}
		if !seen {
			if _, err := g.audit.Record(ctx, lookup, p, source); err != nil {
				return Decision{}, err
			}
		}
	}
	return g.decided(d), nil
}

// Current returns the token held in sess when it is still valid.
func (g *Gate) Current(ctx context.Context, sess Session) (token.Token, bool, error) {
	if sess == nil {
		return token.Token{}, false, ErrMisconfigured
	}

	lookup, err := g.tokens.Resolve(ctx, sess.GetString(g.config.SessionKey))
	if err != nil {
		return token.Token{}, false, err
	}
	if !lookup.Valid(g.tokens.Clock()) {
		return token.Token{}, false, nil
	}

	t, _ := lookup.Token()
	return t, true, nil
}

// extract finds the token value: header first, then session, then the
// query string when enabled.
func (g *Gate) extract(req Request, sessionValue string) (string, Source) {
	if g.config.HeaderName != "" && req.Header != nil {
		if v := strings.TrimSpace(req.Header.Get(g.config.HeaderName)); v != "" {
			return v, SourceHeader
		}
	}

	if sessionValue != "" {
		return sessionValue, SourceSession
	}

	if g.config.QueryParam != "" && req.RawQuery != "" {
		if query, err := url.ParseQuery(req.RawQuery); err == nil {
			if v := strings.TrimSpace(query.Get(g.config.QueryParam)); v != "" {
				return v, SourceQuery
			}
		}
	}
	return "", SourceNone
}

func (g *Gate) decided(d Decision) Decision {
	metrics.GateDecisionsTotal.WithLabelValues(d.Outcome.String()).Inc()
	return d
}
