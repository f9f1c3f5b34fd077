// internal/storage/postgres/testutil_test.go
package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/storage/migrations"
)

// setupTestDB starts a PostgreSQL container and applies the embedded migrations.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, Config{DSN: dsn}, zaptest.NewLogger(t))
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "failed to apply migrations")
	// Migrations must be re-runnable.
	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

func newPending(id, user, asset string, created time.Time) *domain.Target {
	return &domain.Target{
		ID:             id,
		UserID:         user,
		AssetAddress:   asset,
		AmountLamports: 100_000_000,
		SlippageBps:    1500,
		Trigger:        domain.TriggerOnLiquidity,
		Status:         domain.StatusPending,
		MaxAttempts:    3,
		IsActive:       true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}
