package thread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/repository"
	"github.com/rpggio/taskflow/internal/validation"
)

// Service handles conversation threads for the authenticated caller.
type Service struct {
	repo    Repository
	limiter Admitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new thread service.
func NewService(repo Repository, limiter Admitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, limiter: limiter, logger: logger, now: time.Now}
}

// CreateRequest defines thread creation inputs. Title is optional.
type CreateRequest struct {
	Title string
}

// Create starts a new active thread.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Thread, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx, ratelimit.CreateThread, caller.ID); err != nil {
		return nil, err
	}
	if req.Title != "" && !validation.ThreadTitle(req.Title) {
		return nil, validation.Fail("title", "must be between 1 and 100 characters")
	}

	now := s.now()
	t := &Thread{
		ID:        uuid.NewString(),
		OwnerID:   caller.ID,
		Title:     req.Title,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	return t, nil
}

// Get fetches a thread the caller owns.
func (s *Service) Get(ctx context.Context, id string) (*Thread, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.fetchOwned(ctx, caller, id)
}

// List returns the caller's threads, newest first.
func (s *Service) List(ctx context.Context) ([]Thread, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, caller.ID)
}

// ListByStatus returns the caller's threads in status.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Thread, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if !validation.ThreadStatus(string(status)) {
		return nil, validation.Fail("status", "must be active or archived")
	}
	return s.repo.ListByOwnerAndStatus(ctx, caller.ID, status)
}

// Rename changes the title of a thread the caller owns.
func (s *Service) Rename(ctx context.Context, id, title string) (*Thread, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx, ratelimit.UpdateThread, caller.ID); err != nil {
		return nil, err
	}
	if !validation.ThreadTitle(title) {
		return nil, validation.Fail("title", "must be between 1 and 100 characters")
	}

	t, err := s.fetchOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	expected := t.UpdatedAt
	t.Title = title
	if err := s.save(ctx, t, expected); err != nil {
		return nil, err
	}
	return t, nil
}

// Archive marks a thread the caller owns as archived.
func (s *Service) Archive(ctx context.Context, id string) (*Thread, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx, ratelimit.UpdateThread, caller.ID); err != nil {
		return nil, err
	}

	t, err := s.fetchOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusArchived {
		return t, nil
	}
	expected := t.UpdatedAt
	t.Status = StatusArchived
	if err := s.save(ctx, t, expected); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a thread the caller owns along with its messages.
func (s *Service) Delete(ctx context.Context, id string) error {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return err
	}
	if err := s.limiter.Admit(ctx, ratelimit.DeleteThread, caller.ID); err != nil {
		return err
	}

	if _, err := s.fetchOwned(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, caller.ID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return access.NotFound("thread", id)
		}
		return fmt.Errorf("deleting thread: %w", err)
	}
	s.logger.Debug("thread deleted", "thread_id", id, "owner_id", caller.ID)
	return nil
}

func (s *Service) fetchOwned(ctx context.Context, caller access.Caller, id string) (*Thread, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, access.NotFound("thread", id)
		}
		return nil, fmt.Errorf("getting thread: %w", err)
	}
	if err := access.AssertOwned(t.OwnerID, caller.ID); err != nil {
		s.logger.Warn("thread access denied", "thread_id", id, "caller_id", caller.ID)
		return nil, err
	}
	return t, nil
}

func (s *Service) save(ctx context.Context, t *Thread, expected time.Time) error {
	if err := s.repo.Update(ctx, t, expected); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return access.ErrConflict
		case errors.Is(err, repository.ErrNotFound):
			return access.NotFound("thread", t.ID)
		}
		return fmt.Errorf("updating thread: %w", err)
	}
	return nil
}
