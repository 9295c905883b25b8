package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a throwaway ClickHouse server, applies the schema and
// returns a connection to the trader database.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.8-alpine",
			ExposedPorts: []string{defaultNativePort + "/tcp"},
			Env:          map[string]string{"CLICKHOUSE_DB": "trader"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(90*time.Second),
				wait.ForListeningPort(defaultNativePort+"/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")

	endpoint, err := container.PortEndpoint(ctx, defaultNativePort+"/tcp", "clickhouse")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("%s/trader", endpoint))
	require.NoError(t, err)
	runMigrations(t, conn)

	var done bool
	cleanup := func() {
		if done {
			return
		}
		done = true
		_ = conn.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate clickhouse container: %v", err)
		}
	}
	t.Cleanup(cleanup)
	return conn, cleanup
}

// runMigrations applies the schema scripts next to this package. The
// migrations package imports this one, so they are read from disk.
func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	scripts, err := filepath.Glob(filepath.Join("..", "migrations", "clickhouse", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, scripts, "no clickhouse schema scripts found")
	sort.Strings(scripts)

	for _, path := range scripts {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(content), ";") {
			if stmt = withoutComments(stmt); stmt != "" {
				require.NoError(t, conn.Exec(ctx, stmt), "apply %s", filepath.Base(path))
			}
		}
	}
}

func withoutComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
