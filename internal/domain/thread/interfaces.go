package thread

import (
	"context"
	"time"

	"github.com/rpggio/taskflow/internal/ratelimit"
)

// Repository provides persistence for threads.
type Repository interface {
	Create(ctx context.Context, t *Thread) error
	Get(ctx context.Context, id string) (*Thread, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Thread, error)
	ListByOwnerAndStatus(ctx context.Context, ownerID string, status Status) ([]Thread, error)
	Update(ctx context.Context, t *Thread, expectedUpdatedAt time.Time) error
	// Delete removes the thread and its messages.
	Delete(ctx context.Context, ownerID, id string) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	CountActiveByOwner(ctx context.Context, ownerID string) (int, error)
}

// Admitter decides whether an operation may proceed for a subject.
type Admitter interface {
	Admit(ctx context.Context, op ratelimit.Operation, subject string) error
}
