package message

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/repository"
	"github.com/rpggio/taskflow/internal/validation"
)

// Service handles messages inside threads the caller owns.
type Service struct {
	repo    Repository
	threads ThreadReader
	limiter Admitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new message service.
func NewService(repo Repository, threads ThreadReader, limiter Admitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, threads: threads, limiter: limiter, logger: logger, now: time.Now}
}

// SendRequest defines message inputs. Role defaults to user.
type SendRequest struct {
	ThreadID string
	Role     Role
	Content  string
}

// Send appends a message to a thread the caller owns.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Admit(ctx, ratelimit.SendMessage, caller.ID); err != nil {
		return nil, err
	}

	if req.Role == "" {
		req.Role = RoleUser
	}
	if !validation.MessageRole(string(req.Role)) {
		return nil, validation.Fail("role", "must be user or assistant")
	}
	if !validation.MessageContent(req.Content) {
		return nil, validation.Fail("content", "must be between 1 and 5000 characters")
	}

	if _, err := s.ownedThread(ctx, caller, req.ThreadID); err != nil {
		return nil, err
	}

	m := &Message{
		ID:        uuid.NewString(),
		ThreadID:  req.ThreadID,
		OwnerID:   caller.ID,
		Role:      req.Role,
		Content:   req.Content,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrForeignKeyViolation) {
			return nil, access.NotFound("thread", req.ThreadID)
		}
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return m, nil
}

// List returns messages of a thread the caller owns, oldest first.
func (s *Service) List(ctx context.Context, threadID string, limit int) ([]Message, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedThread(ctx, caller, threadID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return s.repo.ListByThread(ctx, threadID, limit)
}

// Latest returns the newest message of a thread the caller owns, or nil
// when the thread is empty.
func (s *Service) Latest(ctx context.Context, threadID string) (*Message, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedThread(ctx, caller, threadID); err != nil {
		return nil, err
	}
	m, err := s.repo.Latest(ctx, threadID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest message: %w", err)
	}
	return m, nil
}

// Delete removes a message the caller wrote.
func (s *Service) Delete(ctx context.Context, id string) error {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return err
	}
	if err := s.limiter.Admit(ctx, ratelimit.DeleteMessage, caller.ID); err != nil {
		return err
	}

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return access.NotFound("message", id)
		}
		return fmt.Errorf("getting message: %w", err)
	}
	if err := access.AssertOwned(m.OwnerID, caller.ID); err != nil {
		s.logger.Warn("message access denied", "message_id", id, "caller_id", caller.ID)
		return err
	}

	if err := s.repo.Delete(ctx, caller.ID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return access.NotFound("message", id)
		}
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

func (s *Service) ownedThread(ctx context.Context, caller access.Caller, threadID string) (*thread.Thread, error) {
	if threadID == "" {
		return nil, validation.Fail("thread_id", "is required")
	}
	t, err := s.threads.Get(ctx, threadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, access.NotFound("thread", threadID)
		}
		return nil, fmt.Errorf("getting thread: %w", err)
	}
	if err := access.AssertOwned(t.OwnerID, caller.ID); err != nil {
		s.logger.Warn("thread access denied", "thread_id", threadID, "caller_id", caller.ID)
		return nil, err
	}
	return t, nil
}
