package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/repository"
)

const threadColumns = `id, owner_id, title, status, created_at, updated_at`

// ThreadRepository implements thread.Repository for SQLite
type ThreadRepository struct {
	db  *DB
	now func() time.Time
}

// NewThreadRepository creates a new ThreadRepository
func NewThreadRepository(db *DB) *ThreadRepository {
	return &ThreadRepository{db: db, now: time.Now}
}

// Create inserts a new thread
func (r *ThreadRepository) Create(ctx context.Context, t *thread.Thread) error {
	query := `INSERT INTO threads (` + threadColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		t.Title,
		t.Status,
		toMillis(t.CreatedAt),
		toMillis(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

// Get retrieves a thread by ID regardless of owner
func (r *ThreadRepository) Get(ctx context.Context, id string) (*thread.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = ?`

	t, err := scanThread(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return t, nil
}

// ListByOwner lists an owner's threads, newest first
func (r *ThreadRepository) ListByOwner(ctx context.Context, ownerID string) ([]thread.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`
	return r.list(ctx, query, ownerID)
}

// ListByOwnerAndStatus lists an owner's threads in status, newest first
func (r *ThreadRepository) ListByOwnerAndStatus(ctx context.Context, ownerID string, status thread.Status) ([]thread.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE owner_id = ? AND status = ? ORDER BY created_at DESC, rowid DESC`
	return r.list(ctx, query, ownerID, status)
}

// Update writes t if it is still at expectedUpdatedAt
func (r *ThreadRepository) Update(ctx context.Context, t *thread.Thread, expectedUpdatedAt time.Time) error {
	stamp := nextStamp(r.now(), expectedUpdatedAt)

	query := `
		UPDATE threads
		SET title = ?, status = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND updated_at = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		t.Title,
		t.Status,
		toMillis(stamp),
		t.ID,
		t.OwnerID,
		toMillis(expectedUpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		checkQuery := `SELECT EXISTS(SELECT 1 FROM threads WHERE id = ? AND owner_id = ?)`
		if err := r.db.QueryRowContext(ctx, checkQuery, t.ID, t.OwnerID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check thread existence: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}

	t.UpdatedAt = stamp
	return nil
}

// Delete removes a thread owned by ownerID together with its messages
func (r *ThreadRepository) Delete(ctx context.Context, ownerID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	// Covers connections opened without foreign key enforcement.
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete thread messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread delete: %w", err)
	}
	return nil
}

// CountByOwner counts an owner's threads
func (r *ThreadRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	return count(ctx, r.db, `SELECT COUNT(*) FROM threads WHERE owner_id = ?`, ownerID)
}

// CountActiveByOwner counts an owner's active threads
func (r *ThreadRepository) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	return count(ctx, r.db, `SELECT COUNT(*) FROM threads WHERE owner_id = ? AND status = ?`, ownerID, thread.StatusActive)
}

func (r *ThreadRepository) list(ctx context.Context, query string, args ...any) ([]thread.Thread, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	threads := []thread.Thread{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, *t)
	}
	return threads, rows.Err()
}

func scanThread(row rowScanner) (*thread.Thread, error) {
	var (
		t                    thread.Thread
		createdAt, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}
