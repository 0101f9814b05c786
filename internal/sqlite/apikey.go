package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/taskflow/internal/repository"
)

// APIKeyStore maps bearer tokens to user IDs. Only token hashes are stored.
type APIKeyStore struct {
	db  *DB
	now func() time.Time
}

// NewAPIKeyStore creates a new APIKeyStore
func NewAPIKeyStore(db *DB) *APIKeyStore {
	return &APIKeyStore{db: db, now: time.Now}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Add registers token for userID, recording the user if it is new
func (s *APIKeyStore) Add(ctx context.Context, token, userID, description string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`, userID, now); err != nil {
		return fmt.Errorf("failed to record user: %w", err)
	}
	if err := insertKey(ctx, tx, token, userID, description, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit api key: %w", err)
	}
	return nil
}

// Issue generates, stores and returns a fresh token for an existing or new userID.
// It is an operator action; self-service signup goes through Register.
func (s *APIKeyStore) Issue(ctx context.Context, userID, description string) (string, error) {
	token := newToken()
	if err := s.Add(ctx, token, userID, description); err != nil {
		return "", err
	}
	return token, nil
}

// Register creates userID and returns its first token. It returns
// repository.ErrConflict when userID was registered before or already owns
// tasks or threads.
func (s *APIKeyStore) Register(ctx context.Context, userID, description string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var taken bool
	checkQuery := `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)
			OR EXISTS(SELECT 1 FROM tasks WHERE owner_id = ?)
			OR EXISTS(SELECT 1 FROM threads WHERE owner_id = ?)
	`
	if err := tx.QueryRowContext(ctx, checkQuery, userID, userID, userID).Scan(&taken); err != nil {
		return "", fmt.Errorf("failed to check user: %w", err)
	}
	if taken {
		return "", repository.ErrConflict
	}

	now := toMillis(s.now())
	if _, err := tx.ExecContext(ctx, `INSERT INTO users (id, created_at) VALUES (?, ?)`, userID, now); err != nil {
		if isUniqueViolation(err) {
			return "", repository.ErrConflict
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	token := newToken()
	if err := insertKey(ctx, tx, token, userID, description, now); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit signup: %w", err)
	}
	return token, nil
}

func insertKey(ctx context.Context, db execer, token, userID, description string, createdAt int64) error {
	query := `INSERT INTO api_keys (key_hash, user_id, description, created_at) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, HashToken(token), userID, description, createdAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to add api key: %w", err)
	}
	return nil
}

func newToken() string {
	return "tf_" + uuid.NewString()
}

// ResolveCaller returns the user ID for token and records its use
func (s *APIKeyStore) ResolveCaller(ctx context.Context, token string) (string, error) {
	hash := HashToken(token)

	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM api_keys WHERE key_hash = ?`, hash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve api key: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE key_hash = ?`, toMillis(s.now()), hash); err != nil {
		return "", fmt.Errorf("failed to touch api key: %w", err)
	}
	return userID, nil
}

// Revoke deletes every key belonging to userID. The user ID stays registered.
func (s *APIKeyStore) Revoke(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke api keys: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// HashToken returns the hex SHA-256 of token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
