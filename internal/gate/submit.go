package gate

import (
	"context"
	"errors"
	"net/mail"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/freekieb7/go-perimeter/internal/metrics"
	"github.com/freekieb7/go-perimeter/internal/token"
)

// Form field names of the gateway page.
const (
	FieldToken = "token"
	FieldEmail = "email"
	FieldName  = "name"
)

// Field error kinds.
const (
	KindRequired     = "required"
	KindInvalidEmail = "invalid_email"
	KindTooLong      = "too_long"
	KindNotFound     = "not_found"
	KindInactive     = "inactive"
	KindExpired      = "expired"
)

const (
	maxEmailLength = 254
	maxNameLength  = 100
)

var kindMessages = map[string]string{
	KindRequired:     "This field is required.",
	KindInvalidEmail: "Enter a valid email address.",
	KindTooLong:      "This value is too long.",
	KindNotFound:     "Token not found",
	KindInactive:     "Token is inactive",
	KindExpired:      "Token has expired",
}

// Message is the text shown to visitors for an error kind.
func Message(kind string) string {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return "Invalid value."
}

// Submission is the gateway form as posted.
type Submission struct {
	Token string
	Email string
	Name  string
	Next  string
}

// FormErrors maps form fields to error kinds. It is returned as an error
// from Submit when the visitor has to correct the form.
type FormErrors struct {
	Fields map[string]string
}

func (e *FormErrors) Add(field, kind string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = kind
}

// Kind returns the error kind of field, or "".
func (e *FormErrors) Kind(field string) string {
	return e.Fields[field]
}

func (e *FormErrors) Empty() bool {
	return len(e.Fields) == 0
}

func (e *FormErrors) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "invalid gateway form: " + strings.Join(parts, ", ")
}

// SubmitResult is a successful gateway submission. The caller stores
// SessionValue under the session key and redirects to Redirect.
type SubmitResult struct {
	Token        token.Token
	Usage        token.UsageRecord
	SessionValue string
	Redirect     string
}

// Submit checks a gateway form submission and records exactly one usage
// on success. Correctable problems come back as *FormErrors.
func (g *Gate) Submit(ctx context.Context, sub Submission, req Request) (SubmitResult, error) {
	if req.Session == nil {
		return SubmitResult{}, ErrMisconfigured
	}

	sub.Token = strings.TrimSpace(sub.Token)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Name = strings.TrimSpace(sub.Name)

	formErrs := g.validate(sub)
	if !formErrs.Empty() {
		metrics.GatewaySubmissionsTotal.WithLabelValues("invalid_form").Inc()
		return SubmitResult{}, formErrs
	}

	t, err := g.tokens.Check(ctx, sub.Token)
	if err != nil {
		kind := tokenErrorKind(err)
		if kind == "" {
			metrics.GatewaySubmissionsTotal.WithLabelValues("error").Inc()
			return SubmitResult{}, err
		}

		metrics.GatewaySubmissionsTotal.WithLabelValues(kind).Inc()
		g.logger.InfoContext(ctx, "Gateway submission rejected",
			"reason", kind,
			"token", token.MaskValue(sub.Token),
			"client_ip", req.ClientIP)
		formErrs.Add(FieldToken, kind)
		return SubmitResult{}, formErrs
	}

	p := req.presentation()
	p.Email = sub.Email
	p.Name = sub.Name

	usage, err := g.audit.Record(ctx, token.Found(t), p, SourceForm)
	if err != nil {
		metrics.GatewaySubmissionsTotal.WithLabelValues("error").Inc()
		return SubmitResult{}, err
	}

	metrics.GatewaySubmissionsTotal.WithLabelValues("accepted").Inc()
	return SubmitResult{
		Token:        t,
		Usage:        usage,
		SessionValue: t.Value,
		Redirect:     ResolveReturnURL(sub.Next, g.routes, g.config.GatewayPath),
	}, nil
}

func (g *Gate) validate(sub Submission) *FormErrors {
	errs := &FormErrors{}

	if sub.Token == "" {
		errs.Add(FieldToken, KindRequired)
	}

	if !g.config.RequireIdentity {
		return errs
	}

	switch {
	case sub.Email == "":
		errs.Add(FieldEmail, KindRequired)
	case len(sub.Email) > maxEmailLength:
		errs.Add(FieldEmail, KindTooLong)
	case !validEmail(sub.Email):
		errs.Add(FieldEmail, KindInvalidEmail)
	}

	switch {
	case sub.Name == "":
		errs.Add(FieldName, KindRequired)
	case utf8.RuneCountInString(sub.Name) > maxNameLength:
		errs.Add(FieldName, KindTooLong)
	}
	return errs
}

// validEmail accepts a bare address, not a display-name form.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".")
}

func tokenErrorKind(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenNotFound):
		return KindNotFound
	case errors.Is(err, token.ErrTokenInactive):
		return KindInactive
	case errors.Is(err, token.ErrTokenExpired):
		return KindExpired
	}
	return ""
}
