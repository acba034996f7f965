// Package pgtest gives repository tests an isolated, fully migrated
// Postgres database. Tests are skipped unless PROCTOR_PG_TESTS is set.
package pgtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/golangmigrator"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..")
}

// NewDB returns a connection pool to a unique and isolated test database
func NewDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("PROCTOR_PG_TESTS") == "" {
		t.Skip("set PROCTOR_PG_TESTS=1 to run tests against postgres")
	}
	ctx := context.Background()
	conf := pgtestdb.Config{
		DriverName: "pgx",
		User:       envOr("POSTGRES_USER", "proctor"),
		Password:   envOr("POSTGRES_PW", "proctor"),
		Host:       envOr("POSTGRES_HOST", "localhost"),
		Port:       envOr("POSTGRES_PORT", "5433"),
		Options:    "sslmode=disable",
	}
	gm := golangmigrator.New(migrationsDir())
	config := pgtestdb.Custom(t, conf, gm)

	pool, err := pgxpool.New(ctx, config.URL())
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
	})
	return pool
}
