package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/freekieb7/go-perimeter/internal/config"
	"github.com/freekieb7/go-perimeter/internal/database"
	"github.com/freekieb7/go-perimeter/internal/database/databasetest"
	apperrors "github.com/freekieb7/go-perimeter/internal/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	return NewSQLStore(databasetest.New(t), fixedClock(storeNow, time.UTC))
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(&database.Database{DB: db, Driver: config.DriverPostgres}, fixedClock(storeNow, time.UTC)), mock
}

func TestSQLStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 26), CreatedBy: "admin"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.CreatedAt.Equal(storeNow))
	assert.True(t, created.UpdatedAt.Equal(storeNow))

	got, err := store.GetByValue(ctx, "foobar")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "foobar", got.Value)
	assert.True(t, got.Active)
	assert.True(t, got.ExpiresOn.Equal(Date(2026, 10, 26)))
	assert.Equal(t, "admin", got.CreatedBy)
}

func TestSQLStore_CreateDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 26)})
	require.NoError(t, err)

	_, err = store.Create(ctx, Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 27)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateToken))
	assert.True(t, apperrors.IsType(err, apperrors.CodeDuplicateToken))
}

func TestSQLStore_CreateDuplicatePostgres(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+perimeter_token\s*\(token,.*\)\s*VALUES.*RETURNING\s+id$`).
		WithArgs("foobar", true, Date(2026, 10, 26), "", storeNow, storeNow).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := store.Create(context.Background(), Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 26)})
	assert.True(t, errors.Is(err, ErrDuplicateToken))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetByValueNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByValue(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrTokenNotFound))
}

func TestSQLStore_GetByValueDBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*token,.*FROM\s+perimeter_token\s+WHERE\s+token\s*=\s*\$1$`).
		WithArgs("foobar").
		WillReturnError(errors.New("db down"))

	_, err := store.GetByValue(context.Background(), "foobar")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTokenNotFound))
	assert.True(t, apperrors.IsType(err, apperrors.CodeDatabaseError))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 26)})
	require.NoError(t, err)

	later := storeNow.Add(time.Hour)
	store.Clock = fixedClock(later, time.UTC)

	created.Active = false
	created.ExpiresOn = Date(2026, 11, 1)
	updated, err := store.Update(ctx, created)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.Equal(later))

	got, err := store.GetByValue(ctx, "foobar")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.True(t, got.ExpiresOn.Equal(Date(2026, 11, 1)))
	assert.True(t, got.CreatedAt.Equal(storeNow))
	assert.True(t, got.UpdatedAt.Equal(later))

	_, err = store.Update(ctx, Token{ID: 9999, Value: "ghost"})
	assert.True(t, errors.Is(err, ErrTokenNotFound))
}

func TestSQLStore_DeleteCascadesUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 26)})
	require.NoError(t, err)
	_, err = store.RecordUsage(ctx, UsageRecord{TokenID: created.ID})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, created))

	_, err = store.GetByValue(ctx, "foobar")
	assert.True(t, errors.Is(err, ErrTokenNotFound))

	var count int
	require.NoError(t, store.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM perimeter_token_use`).Scan(&count))
	assert.Equal(t, 0, count)

	assert.True(t, errors.Is(store.Delete(ctx, created), ErrTokenNotFound))
}

func TestSQLStore_RecordUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 26)})
	require.NoError(t, err)

	t.Run("defaults provenance to unknown", func(t *testing.T) {
		record, err := store.RecordUsage(ctx, UsageRecord{TokenID: created.ID})
		require.NoError(t, err)
		assert.NotZero(t, record.ID)
		assert.Equal(t, UnknownClient, record.ClientIP)
		assert.Equal(t, UnknownClient, record.ClientUserAgent)
		assert.True(t, record.Timestamp.Equal(storeNow))
	})

	t.Run("keeps an explicit timestamp", func(t *testing.T) {
		stamp := storeNow.Add(-time.Hour)
		record, err := store.RecordUsage(ctx, UsageRecord{
			TokenID:         created.ID,
			Email:           "hugo@example.com",
			Name:            "Hugo",
			ClientIP:        "10.0.0.1",
			ClientUserAgent: "curl/8",
			Timestamp:       stamp,
		})
		require.NoError(t, err)
		assert.True(t, record.Timestamp.Equal(stamp))
	})

	records, err := store.ListUsage(ctx, "foobar", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "foobar", records[0].TokenValue)
	assert.Equal(t, UnknownClient, records[0].ClientIP)
	assert.Equal(t, "hugo@example.com", records[1].Email)
	assert.Equal(t, "10.0.0.1", records[1].ClientIP)
}

func TestSQLStore_HasUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Token{Value: "foobar", Active: true, ExpiresOn: Date(2026, 10, 26)})
	require.NoError(t, err)

	seen, err := store.HasUsage(ctx, created.ID, "10.0.0.1", "curl/8")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = store.RecordUsage(ctx, UsageRecord{TokenID: created.ID, ClientIP: "10.0.0.1", ClientUserAgent: "curl/8"})
	require.NoError(t, err)
	_, err = store.RecordUsage(ctx, UsageRecord{TokenID: created.ID})
	require.NoError(t, err)

	tests := []struct {
		name      string
		ip, agent string
		want      bool
	}{
		{"same client", "10.0.0.1", "curl/8", true},
		{"other address", "10.0.0.2", "curl/8", false},
		{"other agent", "10.0.0.1", "wget", false},
		{"unknown provenance", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, err := store.HasUsage(ctx, created.ID, tt.ip, tt.agent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestSQLStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, Token{Value: "first", Active: true, ExpiresOn: Date(2026, 10, 26)})
	require.NoError(t, err)
	store.Clock = fixedClock(storeNow.Add(time.Minute), time.UTC)
	_, err = store.Create(ctx, Token{Value: "second", Active: false, ExpiresOn: Date(2026, 10, 1)})
	require.NoError(t, err)

	tokens, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "second", tokens[0].Value)
	assert.Equal(t, "first", tokens[1].Value)
}
