package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"tasks",
		"threads",
		"messages",
		"rate_limits",
		"api_keys",
		"users",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}

	// Running them again is harmless
	require.NoError(t, db.RunMigrations())
}

// TestForeignKeys verifies that foreign key constraints are enabled
func TestForeignKeys(t *testing.T) {
	db := NewTestDB(t)

	var enabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	require.NoError(t, err)
	require.Equal(t, 1, enabled, "foreign keys not enabled")
}

// TestTaskConstraints verifies the tasks table rejects unknown priorities
func TestTaskConstraints(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, title, priority, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"t1", "user1", "Write report", "high", 1, 1)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, title, priority, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"t2", "user1", "Write report", "urgent", 1, 1)
	require.Error(t, err, "should fail with invalid priority")
}

// TestMessageConstraints verifies messages need an existing thread and a known role
func TestMessageConstraints(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, owner_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"m1", "missing", "user1", "user", "hello", 1)
	require.Error(t, err, "should fail with invalid thread_id")
	require.True(t, isForeignKeyViolation(err))

	_, err = db.ExecContext(ctx,
		`INSERT INTO threads (id, owner_id, title, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"th1", "user1", "Planning", "active", 1, 1)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, owner_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"m2", "th1", "user1", "system", "hello", 1)
	require.Error(t, err, "should fail with invalid role")
}

func TestWithPragmas(t *testing.T) {
	require.Equal(t, ":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas(":memory:"))
	require.Equal(t, "file:x?mode=memory&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("file:x?mode=memory"))
	require.Equal(t, "db?_pragma=journal_mode(WAL)", withPragmas("db?_pragma=journal_mode(WAL)"))
}

func TestNextStamp(t *testing.T) {
	prev := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	// a clock that has not moved still yields a later stamp
	require.Equal(t, prev.Add(time.Millisecond), nextStamp(prev, prev))
	require.Equal(t, prev.Add(time.Millisecond), nextStamp(prev.Add(-time.Hour), prev))

	later := prev.Add(time.Minute)
	require.Equal(t, later, nextStamp(later.Add(300*time.Microsecond), prev))
}
