package task

import (
	"context"
	"time"

	"github.com/rpggio/taskflow/internal/ratelimit"
)

// Repository provides persistence for tasks.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Task, error)
	ListByOwnerAndCompleted(ctx context.Context, ownerID string, completed bool) ([]Task, error)
	ListUpcoming(ctx context.Context, ownerID string, limit int) ([]Task, error)
	ListRecent(ctx context.Context, ownerID string, limit int) ([]Task, error)
	Update(ctx context.Context, t *Task, expectedUpdatedAt time.Time) error
	Delete(ctx context.Context, ownerID, id string) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	CountCompletedByOwner(ctx context.Context, ownerID string) (int, error)
}

// Admitter decides whether an operation may proceed for a subject.
type Admitter interface {
	Admit(ctx context.Context, op ratelimit.Operation, subject string) error
}
