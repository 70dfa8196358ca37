// Package testutil provides opt-in Postgres helpers for integration tests.
// Everything here is keyed on TEST_DATABASE_URL; when it is unset the
// helpers skip the calling test.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/pkordes/dreamtrip/backend/migrations"
)

// DSNEnv names the variable that points the integration tests at a database.
const DSNEnv = "TEST_DATABASE_URL"

// Tables lists the schema's tables in dependency order (parents first).
var Tables = []string{"trips", "itinerary_versions", "chat_sessions"}

// NewPool returns a pool on the test database, closed when the test ends.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, err := openPool(context.Background(), requireDSN(t))
	if err != nil {
		t.Fatalf("testutil.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// NewSQLDB returns a database/sql view of a fresh test pool, for driving goose
// directly.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	db := stdlib.OpenDBFromPool(NewPool(t))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewProvider returns a goose provider over the embedded migrations.
func NewProvider(db *sql.DB) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("testutil.NewProvider: %w", err)
	}
	return provider, nil
}

// MigrateFromEnv brings the database named by TEST_DATABASE_URL up to the
// latest schema. It is meant for TestMain, where no *testing.T exists, and
// reports false when the variable is unset.
func MigrateFromEnv(ctx context.Context) (bool, error) {
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		return false, nil
	}

	pool, err := openPool(ctx, dsn)
	if err != nil {
		return true, fmt.Errorf("testutil.MigrateFromEnv: %w", err)
	}
	defer pool.Close()

	provider, err := NewProvider(stdlib.OpenDBFromPool(pool))
	if err != nil {
		return true, err
	}
	if _, err := provider.Up(ctx); err != nil {
		return true, fmt.Errorf("testutil.MigrateFromEnv: up: %w", err)
	}
	return true, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skip(DSNEnv + " not set; skipping integration test")
	}
	return dsn
}
