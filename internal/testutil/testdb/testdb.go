// Package testdb opens migrated databases for tests.
package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"schoolattendance/internal/store"
)

// SQLite returns a fresh migrated in-memory database closed at test end.
func SQLite(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.NewDB(":memory:")
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()), "migrate sqlite")
	return db
}

// User inserts a user row and returns its id. Attendance rows need a recorder.
func User(t testing.TB, db *store.DB, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Client.Exec(db.Client.Rebind(`
		INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)
	`), id, name, id+"@school.test", "x", time.Now().UTC())
	require.NoError(t, err, "insert user")
	return id
}

// Student inserts a student row and returns its surrogate id.
func Student(t testing.TB, db *store.DB, schoolID, name, class, section string) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := db.Client.Exec(db.Client.Rebind(`
		INSERT INTO students (id, student_id, name, class, section, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), id, schoolID, name, class, section, now, now)
	require.NoError(t, err, "insert student")
	return id
}
