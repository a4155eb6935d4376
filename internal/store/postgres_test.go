//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolattendance/internal/store"
	"schoolattendance/internal/testutil/testdb"
)

func TestPostgresMigrateAndUniqueViolation(t *testing.T) {
	db := testdb.Postgres(t)
	ctx := context.Background()
	assert.Equal(t, goose.DialectPostgres, db.Dialect)
	require.NoError(t, db.Migrate(ctx), "second run is a no-op")
	require.NoError(t, db.Ping(ctx))

	insert := db.Client.Rebind(`INSERT INTO users (id, name, email, password_hash) VALUES (?, ?, ?, ?)`)
	_, err := db.Client.ExecContext(ctx, insert, "u1", "A", "a@school.test", "x")
	require.NoError(t, err)
	_, err = db.Client.ExecContext(ctx, insert, "u2", "B", "a@school.test", "x")
	assert.True(t, store.IsUniqueViolation(err))
}
