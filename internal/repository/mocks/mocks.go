package mocks

import (
	"context"
	"time"

	"github.com/rpggio/taskflow/internal/domain/message"
	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/stretchr/testify/mock"
)

// TaskRepository is a mock for task.Repository.
type TaskRepository struct {
	mock.Mock
}

func (m *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *TaskRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*task.Task); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TaskRepository) ListByOwner(ctx context.Context, ownerID string) ([]task.Task, error) {
	args := m.Called(ctx, ownerID)
	if list, ok := args.Get(0).([]task.Task); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TaskRepository) ListByOwnerAndCompleted(ctx context.Context, ownerID string, completed bool) ([]task.Task, error) {
	args := m.Called(ctx, ownerID, completed)
	if list, ok := args.Get(0).([]task.Task); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TaskRepository) ListUpcoming(ctx context.Context, ownerID string, limit int) ([]task.Task, error) {
	args := m.Called(ctx, ownerID, limit)
	if list, ok := args.Get(0).([]task.Task); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TaskRepository) ListRecent(ctx context.Context, ownerID string, limit int) ([]task.Task, error) {
	args := m.Called(ctx, ownerID, limit)
	if list, ok := args.Get(0).([]task.Task); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TaskRepository) Update(ctx context.Context, t *task.Task, expectedUpdatedAt time.Time) error {
	args := m.Called(ctx, t, expectedUpdatedAt)
	return args.Error(0)
}

func (m *TaskRepository) Delete(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

func (m *TaskRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

func (m *TaskRepository) CountCompletedByOwner(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

// ThreadRepository is a mock for thread.Repository.
type ThreadRepository struct {
	mock.Mock
}

func (m *ThreadRepository) Create(ctx context.Context, t *thread.Thread) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *ThreadRepository) Get(ctx context.Context, id string) (*thread.Thread, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*thread.Thread); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ThreadRepository) ListByOwner(ctx context.Context, ownerID string) ([]thread.Thread, error) {
	args := m.Called(ctx, ownerID)
	if list, ok := args.Get(0).([]thread.Thread); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ThreadRepository) ListByOwnerAndStatus(ctx context.Context, ownerID string, status thread.Status) ([]thread.Thread, error) {
	args := m.Called(ctx, ownerID, status)
	if list, ok := args.Get(0).([]thread.Thread); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ThreadRepository) Update(ctx context.Context, t *thread.Thread, expectedUpdatedAt time.Time) error {
	args := m.Called(ctx, t, expectedUpdatedAt)
	return args.Error(0)
}

func (m *ThreadRepository) Delete(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

func (m *ThreadRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

func (m *ThreadRepository) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

// MessageRepository is a mock for message.Repository.
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Create(ctx context.Context, msg *message.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepository) Get(ctx context.Context, id string) (*message.Message, error) {
	args := m.Called(ctx, id)
	if msg, ok := args.Get(0).(*message.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]message.Message, error) {
	args := m.Called(ctx, threadID, limit)
	if list, ok := args.Get(0).([]message.Message); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]message.Message, error) {
	args := m.Called(ctx, ownerID, limit)
	if list, ok := args.Get(0).([]message.Message); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) Latest(ctx context.Context, threadID string) (*message.Message, error) {
	args := m.Called(ctx, threadID)
	if msg, ok := args.Get(0).(*message.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) Delete(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

func (m *MessageRepository) DeleteByThread(ctx context.Context, threadID string) (int, error) {
	args := m.Called(ctx, threadID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepository) CountByThread(ctx context.Context, threadID string) (int, error) {
	args := m.Called(ctx, threadID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

// Admitter is a mock for the rate limiter's Admit method.
type Admitter struct {
	mock.Mock
}

func (m *Admitter) Admit(ctx context.Context, op ratelimit.Operation, subject string) error {
	args := m.Called(ctx, op, subject)
	return args.Error(0)
}
