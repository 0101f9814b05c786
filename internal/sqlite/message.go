package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/taskflow/internal/domain/message"
	"github.com/rpggio/taskflow/internal/repository"
)

const messageColumns = `id, thread_id, owner_id, role, content, created_at`

// MessageRepository implements message.Repository for SQLite
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	query := `INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.ThreadID,
		m.OwnerID,
		m.Role,
		m.Content,
		toMillis(m.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Get retrieves a message by ID regardless of owner
func (r *MessageRepository) Get(ctx context.Context, id string) (*message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// ListByThread lists a thread's messages, oldest first. A limit of zero returns all.
func (r *MessageRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE thread_id = ? ORDER BY created_at ASC, rowid ASC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// ListByOwner lists messages written by an owner, newest first. A limit of zero returns all.
func (r *MessageRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// Latest returns the newest message in a thread
func (r *MessageRepository) Latest(ctx context.Context, threadID string) (*message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE thread_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, threadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return m, nil
}

// Delete removes a message written by ownerID
func (r *MessageRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
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

// DeleteByThread removes every message in a thread and returns how many were removed
func (r *MessageRepository) DeleteByThread(ctx context.Context, threadID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete thread messages: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// CountByThread counts a thread's messages
func (r *MessageRepository) CountByThread(ctx context.Context, threadID string) (int, error) {
	return count(ctx, r.db, `SELECT COUNT(*) FROM messages WHERE thread_id = ?`, threadID)
}

// CountByOwner counts messages written by an owner
func (r *MessageRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	return count(ctx, r.db, `SELECT COUNT(*) FROM messages WHERE owner_id = ?`, ownerID)
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]message.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []message.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func scanMessage(row rowScanner) (*message.Message, error) {
	var (
		m         message.Message
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.ThreadID, &m.OwnerID, &m.Role, &m.Content, &createdAt); err != nil {
		return nil, err
	}
	m.CreatedAt = fromMillis(createdAt)
	return &m, nil
}
