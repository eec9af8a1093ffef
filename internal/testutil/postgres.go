// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/storage"
	"github.com/cuongbtq/render-jobs/shared/logger"
	"github.com/cuongbtq/render-jobs/shared/postgresql"
)

// TestDBConfig reads the integration database settings from TEST_DATABASE_* variables.
func TestDBConfig() *postgresql.Config {
	port, err := strconv.Atoi(getEnv("TEST_DATABASE_PORT", "5432"))
	if err != nil {
		port = 5432
	}

	return &postgresql.Config{
		Host:           os.Getenv("TEST_DATABASE_HOST"),
		Port:           port,
		User:           getEnv("TEST_DATABASE_USER", "postgres"),
		Password:       getEnv("TEST_DATABASE_PASSWORD", "postgres"),
		Database:       getEnv("TEST_DATABASE_NAME", "render_jobs_test"),
		SSLMode:        "disable",
		MaxOpenConns:   5,
		MaxIdleConns:   1,
		ConnectTimeout: 2 * time.Second,
	}
}

// NewTestStorage connects to the integration database, applies migrations and empties every table.
// The test is skipped when TEST_DATABASE_HOST is unset.
func NewTestStorage(t testing.TB) *storage.Storage {
	t.Helper()

	cfg := TestDBConfig()
	if cfg.Host == "" {
		t.Skip("TEST_DATABASE_HOST not set, skipping integration test")
	}

	log := logger.NewNop()
	client, err := postgresql.NewClient(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, client.Migrate(ctx, storage.Migrations, storage.MigrationsDir))

	_, err = client.GetDB().ExecContext(ctx, `
		TRUNCATE jobs, tenant_webhook_configs, api_keys, api_key_usage, credit_usage, api_request_logs
	`)
	require.NoError(t, err)

	return storage.NewStorage(client.GetDB(), log)
}

// ExecSQL runs a statement against the integration database used by NewTestStorage.
func ExecSQL(t testing.TB, query string, args ...any) {
	t.Helper()

	client, err := postgresql.NewClient(TestDBConfig(), logger.NewNop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetDB().ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
