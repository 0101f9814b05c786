package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/repository"
)

// Service handles task operations for the authenticated caller.
type Service struct {
	repo    Repository
	limiter Admitter
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for due-date checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new task service.
func NewService(repo Repository, limiter Admitter, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{repo: repo, limiter: limiter, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest defines task creation inputs.
type CreateRequest struct {
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	ID           string
	Title        *string
	Description  *string
	Priority     *string
	DueDate      *time.Time
	ClearDueDate bool
	Completed    *bool
}

// Create creates a task owned by the caller.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx, ratelimit.CreateTask, caller.ID); err != nil {
		return nil, err
	}

	now := s.now()
	if err := ValidateCreate(req, now); err != nil {
		return nil, err
	}

	t := &Task{
		ID:          uuid.NewString(),
		OwnerID:     caller.ID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.logger.Debug("task created", "task_id", t.ID, "owner_id", caller.ID)
	return t, nil
}

// Update applies a partial update to a task the caller owns.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx, ratelimit.UpdateTask, caller.ID); err != nil {
		return nil, err
	}
	if err := ValidateUpdate(req, s.now()); err != nil {
		return nil, err
	}

	t, err := s.fetchOwned(ctx, caller, req.ID)
	if err != nil {
		return nil, err
	}

	expected := t.UpdatedAt
	applyUpdate(t, req)
	if err := s.save(ctx, t, expected); err != nil {
		return nil, err
	}
	return t, nil
}

// ToggleComplete flips the completion flag of a task the caller owns.
func (s *Service) ToggleComplete(ctx context.Context, id string) (*Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx, ratelimit.UpdateTask, caller.ID); err != nil {
		return nil, err
	}

	t, err := s.fetchOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	expected := t.UpdatedAt
	t.Completed = !t.Completed
	if err := s.save(ctx, t, expected); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task the caller owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return err
	}
	if err := s.limiter.Admit(ctx, ratelimit.DeleteTask, caller.ID); err != nil {
		return err
	}

	if _, err := s.fetchOwned(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, caller.ID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return access.NotFound("task", id)
		}
		return fmt.Errorf("deleting task: %w", err)
	}

	s.logger.Debug("task deleted", "task_id", id, "owner_id", caller.ID)
	return nil
}

// Get fetches a single task the caller owns.
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.fetchOwned(ctx, caller, id)
}

// List returns the caller's tasks, newest first.
func (s *Service) List(ctx context.Context) ([]Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, caller.ID)
}

// ListByStatus returns the caller's tasks with the given completion flag.
func (s *Service) ListByStatus(ctx context.Context, completed bool) ([]Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByOwnerAndCompleted(ctx, caller.ID, completed)
}

// ListUpcoming returns the caller's tasks with a due date, soonest first.
// A limit of zero or less returns all of them.
func (s *Service) ListUpcoming(ctx context.Context, limit int) ([]Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}
	return s.repo.ListUpcoming(ctx, caller.ID, limit)
}

// ListRecent returns the caller's most recently created tasks.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Task, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.repo.ListRecent(ctx, caller.ID, limit)
}

// Stats returns completion counts for the caller.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return Stats{}, err
	}

	total, err := s.repo.CountByOwner(ctx, caller.ID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting tasks: %w", err)
	}
	completed, err := s.repo.CountCompletedByOwner(ctx, caller.ID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting completed tasks: %w", err)
	}

	stats := Stats{Total: total, Completed: completed, Pending: total - completed}
	if total > 0 {
		stats.CompletionRate = int(math.Round(float64(completed) / float64(total) * 100))
	}
	return stats, nil
}

func (s *Service) fetchOwned(ctx context.Context, caller access.Caller, id string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, access.NotFound("task", id)
		}
		return nil, fmt.Errorf("getting task: %w", err)
	}
	if err := access.AssertOwned(t.OwnerID, caller.ID); err != nil {
		s.logger.Warn("task access denied", "task_id", id, "caller_id", caller.ID)
		return nil, err
	}
	return t, nil
}

func (s *Service) save(ctx context.Context, t *Task, expected time.Time) error {
	if err := s.repo.Update(ctx, t, expected); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return access.ErrConflict
		case errors.Is(err, repository.ErrNotFound):
			return access.NotFound("task", t.ID)
		}
		return fmt.Errorf("updating task: %w", err)
	}
	return nil
}

func applyUpdate(t *Task, req UpdateRequest) {
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.ClearDueDate {
		t.DueDate = nil
	} else if req.DueDate != nil {
		due := *req.DueDate
		t.DueDate = &due
	}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
}
