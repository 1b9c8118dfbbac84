// Package pgtest opens a migrated PostgreSQL pool for integration tests.
// Tests skip unless TEST_DATABASE_URL points at a reachable database.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-core/internal/platform/db"
)

// DatabaseURLEnv names the DSN of the integration database.
const DatabaseURLEnv = "TEST_DATABASE_URL"

const migrateLockID = 7_300_873

// Pool returns a pool on the integration database with the core schema
// applied. The pool is closed when the test ends.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Log(DatabaseURLEnv + " not set")
		t.Skip("database not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.New(ctx, dsn, db.PoolConfig{MaxConns: 40})
	if err != nil {
		t.Logf("connect: %v", err)
		t.Skip("database not available")
	}
	t.Cleanup(pool.Close)

	if err := migrate(ctx, pool); err != nil {
		t.Fatalf("pgtest: migrate: %v", err)
	}
	return pool
}

// Key returns prefix with a random suffix, unique per call.
func Key(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("locate migrations")
	}
	path := filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations", "0001_core.up.sql")
	ddl, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrateLockID); err != nil {
		return err
	}
	defer conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrateLockID) //nolint:errcheck
	_, err = conn.Exec(ctx, string(ddl))
	return err
}
