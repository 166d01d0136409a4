// Package dbtest connects repository tests to a real Postgres. Tests are
// skipped unless DB_HOST_TEST is set.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Config builds the test database config from the *_TEST environment variables.
func Config() (config.PostgresConfig, bool) {
	host := os.Getenv("DB_HOST_TEST")
	if host == "" {
		return config.PostgresConfig{}, false
	}

	return config.PostgresConfig{
		Host:            host,
		Port:            envOr("DB_PORT_TEST", "5432"),
		User:            envOr("DB_USER_TEST", "postgres"),
		Password:        envOr("DB_PASSWORD_TEST", "postgres"),
		DBName:          envOr("DB_NAME_TEST", "storefront_test"),
		SSLMode:         envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MigrationsPath:  migrationsPath(),
	}, true
}

// Open returns a migrated pool and truncates tables before and after the test.
func Open(t *testing.T, tables ...string) *pgxpool.Pool {
	t.Helper()

	cfg, ok := Config()
	if !ok {
		t.Skip("DB_HOST_TEST not set, skipping repository test")
	}

	conn, err := db.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.ApplyMigrations(conn, cfg); err != nil {
		conn.Close()
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	conn.Close()

	pg, err := db.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open pool: %v", err)
	}

	truncate := func() {
		if len(tables) == 0 {
			return
		}
		_, err := pg.Pool.Exec(context.Background(), "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
		if err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
	}

	truncate()
	t.Cleanup(func() {
		truncate()
		pg.Close()
	})

	return pg.Pool
}

// migrationsPath walks up from the working directory to the module root.
func migrationsPath() string {
	if p := os.Getenv("DB_MIGRATIONS_PATH_TEST"); p != "" {
		return p
	}

	dir, err := os.Getwd()
	if err != nil {
		return "migrations"
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "migrations"
		}
		dir = parent
	}
}
