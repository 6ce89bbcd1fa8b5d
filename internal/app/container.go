// Package app assembles the perimeter from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/freekieb7/go-perimeter/internal/cache"
	"github.com/freekieb7/go-perimeter/internal/config"
	"github.com/freekieb7/go-perimeter/internal/database"
	"github.com/freekieb7/go-perimeter/internal/gate"
	"github.com/freekieb7/go-perimeter/internal/health"
	"github.com/freekieb7/go-perimeter/internal/metrics"
	"github.com/freekieb7/go-perimeter/internal/session"
	"github.com/freekieb7/go-perimeter/internal/token"
	"github.com/freekieb7/go-perimeter/internal/web/handler"
	"github.com/freekieb7/go-perimeter/internal/web/handler/api"
	"github.com/freekieb7/go-perimeter/internal/web/handler/api/shared"
	"github.com/freekieb7/go-perimeter/internal/web/middleware"
	"github.com/freekieb7/go-perimeter/web"
)

const (
	slowRequestThreshold = time.Second

	// upstreamPattern is the catch-all route of the protected site. A bypass
	// never applies to a request only this route serves.
	upstreamPattern = "/"
)

// Container holds the long-lived services of one perimeter process.
type Container struct {
	Config   config.Config
	Logger   *slog.Logger
	Database *database.Database
	Cache    *cache.Service
	Tokens   *token.Service
	Sessions *session.SQLStore

	// TokenCache is nil when Redis is disabled; every lookup then reads the
	// database.
	TokenCache *cache.TokenCache

	closers []io.Closer
}

// NewLogger logs JSON in production and text elsewhere.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.Level}
	if cfg.Server.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New connects the database and the cache and builds the token service.
// Close releases them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Container, error) {
	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cacheService, err := cache.NewService(ctx, cache.ConfigFrom(cfg.Cache), logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Database: &db,
		Cache:    cacheService,
		Sessions: session.NewSQLStore(&db, cfg.Server.SessionTTL),
		closers:  []io.Closer{cacheService},
	}

	clock := token.NewClock(cfg.Perimeter.Location, nil)

	var tokenCache token.Cache = token.NoCache{}
	if cacheService.Enabled() {
		c.TokenCache = cache.NewTokenCache(cacheService, clock)
		tokenCache = c.TokenCache
	}

	c.Tokens = token.NewService(
		token.NewSQLStore(c.Database, clock),
		tokenCache,
		clock,
		token.Config{
			DefaultExpiryDays: cfg.Perimeter.DefaultExpiryDays,
			ValueLength:       cfg.Perimeter.TokenLength,
		},
		logger,
	)
	return c, nil
}

// Migrate brings the schema up to date.
func (c *Container) Migrate(ctx context.Context) error {
	return c.Database.Migrate(ctx, c.Logger)
}

// Handler builds the routes and wraps them in the perimeter.
func (c *Container) Handler(version string) (http.Handler, error) {
	cfg := c.Config
	logger := c.Logger
	trustProxy := cfg.Server.TrustProxy

	var sessionStore session.Store = c.Sessions
	if c.Cache.Enabled() {
		sessionStore = cache.NewSessionStore(c.Cache, sessionStore, logger, cfg.Cache.SessionTTL)
	}
	sessions := middleware.NewSessions(sessionStore, cfg.Server.IsProduction(), logger)

	mux := http.NewServeMux()

	g, err := gate.New(gate.Config{
		Enabled:         cfg.Perimeter.Enabled,
		SessionKey:      cfg.Perimeter.SessionKey,
		HeaderName:      cfg.Perimeter.HeaderName,
		QueryParam:      cfg.Perimeter.QueryParam,
		GatewayPath:     cfg.Perimeter.GatewayPath,
		Bypass:          gate.LocalBypass(mux, upstreamPattern, gate.PathBypass(cfg.Perimeter.GatewayPath, slices.Concat(cfg.Perimeter.BypassPrefixes, []string{"/static/"})...)),
		RequireIdentity: cfg.Perimeter.RequireIdentity,
	}, c.Tokens, gate.MuxResolver{Mux: mux}, logger)
	if err != nil {
		return nil, err
	}

	// Gateway page
	gateway, err := handler.NewGatewayHandler(g, sessions, trustProxy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	gateway.RegisterRoutes(mux, middleware.CSRF(sessions, logger))
	mux.Handle("GET /static/", http.StripPrefix("/static/", web.NewStaticHandler()))

	// Operations
	handler.NewHealthHandler(health.NewChecker(c.Database, c.Cache, logger, version, database.SchemaVersion)).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	// Admin API
	if cfg.Security.APIKey == "" && cfg.Security.APIKeyHash == "" {
		logger.Warn("Neither API_KEY nor API_KEY_HASH is set, every admin API request will be rejected")
	}
	api.NewHandler(shared.NewBaseHandler(&c.Config, logger, c.Tokens)).RegisterRoutes(mux)

	// Protected site
	if cfg.Perimeter.Upstream != "" {
		upstream, err := handler.NewUpstreamHandler(cfg.Perimeter.Upstream, []string{cfg.Perimeter.HeaderName}, logger)
		if err != nil {
			return nil, err
		}
		mux.Handle(upstreamPattern, upstream)
		logger.Info("Proxying to upstream", "upstream", cfg.Perimeter.Upstream)
	} else {
		mux.HandleFunc("GET /{$}", gateway.HandleLanding)
	}

	return middleware.Chain(
		middleware.Recover(logger),
		middleware.RequestLogger(logger, slowRequestThreshold),
		middleware.SecurityHeaders(middleware.SecurityHeadersFromConfig(cfg.Security, cfg.Perimeter.GatewayPath, "/api/")),
		middleware.Timeout(cfg.Server.WriteTimeout),
		sessions.Middleware(),
		middleware.Perimeter(g, sessions, trustProxy, logger),
	)(mux), nil
}

// Server builds the HTTP server for the configured port.
func (c *Container) Server(version string) (*http.Server, error) {
	h, err := c.Handler(version)
	if err != nil {
		return nil, err
	}

	cfg := c.Config.Server
	return &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        h,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(c.Logger.Handler(), slog.LevelError),
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (c *Container) Run(ctx context.Context, version string) error {
	server, err := c.Server(version)
	if err != nil {
		return err
	}

	srvErr := make(chan error, 1)
	go func() {
		c.Logger.Info("Listening and serving", "addr", server.Addr, "version", version)
		srvErr <- server.ListenAndServe()
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go c.sweepSessions(sweepCtx, c.Config.Server.SessionSweepInterval)

	select {
	case err := <-srvErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		c.Logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}

		c.Logger.Info("Shutdown completed")
	}
	return nil
}

// SweepSessions deletes expired sessions.
func (c *Container) SweepSessions(ctx context.Context) (int64, error) {
	n, err := c.Sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.Logger.InfoContext(ctx, "Expired sessions deleted", "count", n)
	}
	return n, nil
}

func (c *Container) sweepSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.SweepSessions(ctx); err != nil && ctx.Err() == nil {
				c.Logger.ErrorContext(ctx, "Failed to sweep expired sessions", "error", err)
			}
		}
	}
}

func (c *Container) Close() error {
	var errs []error
	for _, closer := range slices.Backward(c.closers) {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.Database.Close()
	return errors.Join(errs...)
}
