package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/freekieb7/go-perimeter/internal/config"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

var (
	ErrNoRows = sql.ErrNoRows
)

//go:embed migrations/pgx/*.sql migrations/sqlite3/*.sql
var migrations embed.FS

const (
	// SchemaVersion is the newest embedded migration.
	SchemaVersion int64 = 1

	// pgUniqueViolation is the SQLSTATE for unique_violation.
	pgUniqueViolation = "23505"
)

type Database struct {
	*sql.DB
	Driver string
}

func NewDatabase() Database {
	return Database{}
}

func (db *Database) Connect(ctx context.Context, cfg config.Database) error {
	conn, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return err
	}

	// Configure the connection pool
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Ping the database to ensure connection is valid
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return err
	}

	db.DB = conn
	db.Driver = cfg.Driver
	return nil
}

// Migrate applies every pending migration for the connected driver.
func (db *Database) Migrate(ctx context.Context, logger *slog.Logger) error {
	provider, err := db.migrationProvider()
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, result := range results {
		logger.InfoContext(ctx, "Applied migration",
			"version", result.Source.Version,
			"path", result.Source.Path,
			"duration", result.Duration)
	}
	return nil
}

// Version returns the currently applied migration version.
func (db *Database) Version(ctx context.Context) (int64, error) {
	provider, err := db.migrationProvider()
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func (db *Database) migrationProvider() (*goose.Provider, error) {
	var dialect goose.Dialect
	switch db.Driver {
	case config.DriverPostgres:
		dialect = goose.DialectPostgres
	case config.DriverSQLite:
		dialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("no migrations for driver %q", db.Driver)
	}

	fsys, err := fs.Sub(migrations, "migrations/"+db.Driver)
	if err != nil {
		return nil, err
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

func (db *Database) Close() {
	if db.DB != nil {
		db.DB.Close()
	}
}

// IsUniqueViolation reports whether err was raised by a unique constraint,
// for either supported driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
