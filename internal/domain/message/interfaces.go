package message

import (
	"context"

	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/ratelimit"
)

// Repository provides persistence for messages.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	Get(ctx context.Context, id string) (*Message, error)
	ListByThread(ctx context.Context, threadID string, limit int) ([]Message, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Message, error)
	Latest(ctx context.Context, threadID string) (*Message, error)
	Delete(ctx context.Context, ownerID, id string) error
	DeleteByThread(ctx context.Context, threadID string) (int, error)
	CountByThread(ctx context.Context, threadID string) (int, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// ThreadReader loads the thread a message belongs to.
type ThreadReader interface {
	Get(ctx context.Context, id string) (*thread.Thread, error)
}

// Admitter decides whether an operation may proceed for a subject.
type Admitter interface {
	Admit(ctx context.Context, op ratelimit.Operation, subject string) error
}
