package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a throwaway Postgres, applies the schema scripts and
// returns a pool. The container is terminated through t.Cleanup as well as
// the returned func, whichever runs first.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("trader"),
		tcpostgres.WithUsername("trader"),
		tcpostgres.WithPassword("trader"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)

	// The migrations package imports this one, so the scripts are read from disk.
	scripts, err := filepath.Glob(filepath.Join("..", "migrations", "postgres", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, scripts, "no postgres schema scripts found")
	sort.Strings(scripts)
	for _, path := range scripts {
		sql, err := os.ReadFile(path)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "apply %s", filepath.Base(path))
	}

	var once bool
	cleanup := func() {
		if once {
			return
		}
		once = true
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	}
	t.Cleanup(cleanup)
	return pool, cleanup
}
