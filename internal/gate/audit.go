package gate

import (
	"context"
	"log/slog"

	"github.com/freekieb7/go-perimeter/internal/metrics"
	"github.com/freekieb7/go-perimeter/internal/token"
)

// UsageRecorder appends usage records.
type UsageRecorder interface {
	RecordUse(ctx context.Context, lookup token.Lookup, p token.Presentation) (token.UsageRecord, error)
}

// AuditRecorder writes one usage record per direct token presentation: a
// gateway submission, a query value the session does not hold yet, or the
// first header presentation from a client. Requests riding on the session
// value are never recorded.
type AuditRecorder struct {
	recorder UsageRecorder
	logger   *slog.Logger
}

func NewAuditRecorder(recorder UsageRecorder, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{
		recorder: recorder,
		logger:   logger,
	}
}

func (a *AuditRecorder) Record(ctx context.Context, lookup token.Lookup, p token.Presentation, source Source) (token.UsageRecord, error) {
	record, err := a.recorder.RecordUse(ctx, lookup, p)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to record token use", "error", err, "source", source.String())
		return token.UsageRecord{}, err
	}

	metrics.UsageRecordsTotal.WithLabelValues(source.String()).Inc()
	a.logger.InfoContext(ctx, "Token use recorded",
		"token", token.MaskValue(record.TokenValue),
		"source", source.String(),
		"client_ip", record.ClientIP,
		"user_email", record.Email)
	return record, nil
}
