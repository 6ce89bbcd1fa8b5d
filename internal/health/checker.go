package health

import (
	"context"
	"log/slog"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Database is the part of the database the checker probes.
type Database interface {
	PingContext(ctx context.Context) error
	Version(ctx context.Context) (int64, error)
}

// Cache is the part of the cache service the checker probes.
type Cache interface {
	Health(ctx context.Context) error
}

// Checker reports the health of the gate's dependencies. The database is
// critical; without it no token can be resolved. The cache is not.
type Checker struct {
	DB        Database
	Cache     Cache
	Logger    *slog.Logger
	Version   string
	StartedAt time.Time

	// SchemaVersion is the migration version the binary expects.
	SchemaVersion int64
}

func NewChecker(db Database, cache Cache, logger *slog.Logger, version string, schemaVersion int64) *Checker {
	return &Checker{
		DB:            db,
		Cache:         cache,
		Logger:        logger,
		Version:       version,
		StartedAt:     time.Now(),
		SchemaVersion: schemaVersion,
	}
}

type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Critical  bool   `json:"critical"`
}

// CheckHealth probes every dependency.
func (h *Checker) CheckHealth(ctx context.Context) HealthStatus {
	components := map[string]ComponentHealth{
		"database": h.checkDatabase(ctx),
		"schema":   h.checkSchema(ctx),
		"cache":    h.checkCache(ctx),
	}

	return HealthStatus{
		Status:     overallStatus(components),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    h.Version,
		Uptime:     time.Since(h.StartedAt).Truncate(time.Second).String(),
		Components: components,
	}
}

// CheckLiveness only verifies the process is responsive.
func (h *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]ComponentHealth{
			"process": {Status: StatusHealthy, Message: "service is responsive", Critical: true},
		},
	}
}

// CheckReadiness probes the critical dependencies only.
func (h *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	components := map[string]ComponentHealth{
		"database": h.checkDatabase(ctx),
		"schema":   h.checkSchema(ctx),
	}

	return HealthStatus{
		Status:     overallStatus(components),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}
}

func (h *Checker) checkDatabase(ctx context.Context) ComponentHealth {
	if h.DB == nil {
		return ComponentHealth{Status: StatusUnhealthy, Message: "database not configured", Critical: true}
	}

	start := time.Now()
	err := h.DB.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		h.Logger.ErrorContext(ctx, "Database health check failed", "error", err, "latency", latency)
		return ComponentHealth{
			Status:    StatusUnhealthy,
			Message:   "database connection failed",
			LatencyMS: latency.Milliseconds(),
			Critical:  true,
		}
	}

	// Warn above 100ms, unhealthy above 5s
	status, message := StatusHealthy, "database connection successful"
	switch {
	case latency > 5*time.Second:
		status, message = StatusUnhealthy, "database response time too slow"
	case latency > 100*time.Millisecond:
		status, message = StatusDegraded, "database response time elevated"
	}

	return ComponentHealth{Status: status, Message: message, LatencyMS: latency.Milliseconds(), Critical: true}
}

func (h *Checker) checkSchema(ctx context.Context) ComponentHealth {
	if h.DB == nil {
		return ComponentHealth{Status: StatusUnhealthy, Message: "database not configured", Critical: true}
	}

	start := time.Now()
	version, err := h.DB.Version(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		h.Logger.ErrorContext(ctx, "Schema version check failed", "error", err)
		return ComponentHealth{Status: StatusUnhealthy, Message: "schema version unavailable", LatencyMS: latency, Critical: true}
	}
	if version < h.SchemaVersion {
		return ComponentHealth{Status: StatusUnhealthy, Message: "migrations pending", LatencyMS: latency, Critical: true}
	}
	return ComponentHealth{Status: StatusHealthy, Message: "schema up to date", LatencyMS: latency, Critical: true}
}

func (h *Checker) checkCache(ctx context.Context) ComponentHealth {
	if h.Cache == nil {
		return ComponentHealth{Status: StatusDegraded, Message: "cache not configured, tokens are read from the database"}
	}

	start := time.Now()
	err := h.Cache.Health(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		h.Logger.WarnContext(ctx, "Cache health check failed", "error", err)
		return ComponentHealth{Status: StatusDegraded, Message: "redis cache unavailable", LatencyMS: latency}
	}
	return ComponentHealth{Status: StatusHealthy, Message: "cache operational", LatencyMS: latency}
}

func overallStatus(components map[string]ComponentHealth) string {
	hasUnhealthy := false
	hasDegraded := false

	for _, component := range components {
		if component.Critical && component.Status == StatusUnhealthy {
			hasUnhealthy = true
		}
		if component.Status != StatusHealthy {
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return StatusUnhealthy
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
