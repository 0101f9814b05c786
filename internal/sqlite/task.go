package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/repository"
)

const taskColumns = `id, owner_id, title, description, completed, priority, due_date, created_at, updated_at`

// TaskRepository implements task.Repository for SQLite
type TaskRepository struct {
	db  *DB
	now func() time.Time
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db, now: time.Now}
}

// Create inserts a new task
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		t.Title,
		t.Description,
		t.Completed,
		t.Priority,
		nullMillis(t.DueDate),
		toMillis(t.CreatedAt),
		toMillis(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID regardless of owner
func (r *TaskRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListByOwner lists an owner's tasks, newest first
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID string) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`
	return r.list(ctx, query, ownerID)
}

// ListByOwnerAndCompleted lists an owner's tasks with the given completion flag, newest first
func (r *TaskRepository) ListByOwnerAndCompleted(ctx context.Context, ownerID string, completed bool) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? AND completed = ? ORDER BY created_at DESC, rowid DESC`
	return r.list(ctx, query, ownerID, completed)
}

// ListUpcoming lists an owner's tasks that have a due date, soonest first.
// A limit of zero returns all of them.
func (r *TaskRepository) ListUpcoming(ctx context.Context, ownerID string, limit int) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? AND due_date IS NOT NULL ORDER BY due_date ASC, rowid ASC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// ListRecent lists an owner's most recently created tasks
func (r *TaskRepository) ListRecent(ctx context.Context, ownerID string, limit int) ([]task.Task, error) {
	if limit <= 0 {
		limit = task.DefaultRecentLimit
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return r.list(ctx, query, ownerID, limit)
}

// Update writes t if it is still at expectedUpdatedAt. The owner column is
// never changed. On success t.UpdatedAt holds the new modification time.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task, expectedUpdatedAt time.Time) error {
	stamp := nextStamp(r.now(), expectedUpdatedAt)

	query := `
		UPDATE tasks
		SET title = ?, description = ?, completed = ?, priority = ?, due_date = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND updated_at = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		t.Title,
		t.Description,
		t.Completed,
		t.Priority,
		nullMillis(t.DueDate),
		toMillis(stamp),
		t.ID,
		t.OwnerID,
		toMillis(expectedUpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return r.missOrConflict(ctx, t.ID, t.OwnerID)
	}

	t.UpdatedAt = stamp
	return nil
}

// Delete removes a task owned by ownerID
func (r *TaskRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountByOwner counts an owner's tasks
func (r *TaskRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	return count(ctx, r.db, `SELECT COUNT(*) FROM tasks WHERE owner_id = ?`, ownerID)
}

// CountCompletedByOwner counts an owner's completed tasks
func (r *TaskRepository) CountCompletedByOwner(ctx context.Context, ownerID string) (int, error) {
	return count(ctx, r.db, `SELECT COUNT(*) FROM tasks WHERE owner_id = ? AND completed = 1`, ownerID)
}

func (r *TaskRepository) missOrConflict(ctx context.Context, id, ownerID string) error {
	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = ? AND owner_id = ?)`
	if err := r.db.QueryRowContext(ctx, checkQuery, id, ownerID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]task.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                    task.Task
		due                  sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.Priority,
		&due,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	t.DueDate = fromNullMillis(due)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

func count(ctx context.Context, db *DB, query string, args ...any) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}
