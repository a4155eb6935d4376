//go:build integration

package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"schoolattendance/internal/store"
)

// Postgres starts a disposable postgres container and returns a migrated connection.
func Postgres(t testing.TB) *store.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("attendance"),
		postgres.WithUsername("attendance"),
		postgres.WithPassword("attendance"),
		tc.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = pg.Terminate(stopCtx)
	})

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := store.NewDB(uri)
	require.NoError(t, err, "connect postgres")
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx), "migrate postgres")
	return db
}
