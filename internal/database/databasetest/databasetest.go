// Package databasetest opens migrated in-memory SQLite databases for tests.
package databasetest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freekieb7/go-perimeter/internal/config"
	"github.com/freekieb7/go-perimeter/internal/database"
)

var seq atomic.Int64

// New returns a fresh database that is closed when the test ends.
func New(t testing.TB) *database.Database {
	t.Helper()

	db := database.NewDatabase()
	cfg := config.Database{
		Driver:          config.DriverSQLite,
		URL:             fmt.Sprintf("file:perimeter_test_%d?mode=memory&cache=shared&_foreign_keys=on", seq.Add(1)),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
	}

	ctx := context.Background()
	if err := db.Connect(ctx, cfg); err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return &db
}
