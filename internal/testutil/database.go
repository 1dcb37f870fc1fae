package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"

	"digimenu/internal/infrastructure/sqlite"
)

// SetupMySQL expects a MySQL database named digimenu_test on localhost:3306
// and skips the test when it is not reachable.
func SetupMySQL(t *testing.T) *sql.DB {
	dsn := "root:@tcp(localhost:3306)/digimenu_test?parseTime=true"
	if v := os.Getenv("MYSQL_TEST_DSN"); v != "" {
		dsn = v
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}

	t.Cleanup(func() {
		if _, err := db.Exec("DELETE FROM ClientState"); err != nil {
			t.Logf("failed to clean ClientState: %v", err)
		}
		db.Close()
	})

	return db
}

// SetupSQLite opens a fresh SQLite file in the test's temp dir.
func SetupSQLite(t *testing.T) *sql.DB {
	db, err := sqlite.NewConnection(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SetupPostgres connects to POSTGRES_TEST_URL and skips when it is unset or
// unreachable.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to open postgres pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres not available: %v", err)
	}

	t.Cleanup(func() {
		if _, err := pool.Exec(ctx, "DELETE FROM client_state"); err != nil {
			t.Logf("failed to clean client_state: %v", err)
		}
		pool.Close()
	})

	return pool
}
