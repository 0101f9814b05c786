package thread_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/repository"
	"github.com/rpggio/taskflow/internal/repository/mocks"
	"github.com/rpggio/taskflow/internal/validation"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func callerCtx(id string) context.Context {
	return access.WithCaller(context.Background(), access.Caller{ID: id})
}

func TestThreadService_CreateDefaultsActive(t *testing.T) {
	ctx := callerCtx("user1")
	repo := &mocks.ThreadRepository{}
	limiter := &mocks.Admitter{}
	limiter.On("Admit", ctx, ratelimit.CreateThread, "user1").Return(nil)
	repo.On("Create", ctx, mock.Anything).Return(nil)

	th, err := thread.NewService(repo, limiter, nil).Create(ctx, thread.CreateRequest{})
	require.NoError(t, err)
	require.Equal(t, thread.StatusActive, th.Status)
	require.Equal(t, "user1", th.OwnerID)
}

func TestThreadService_CreateTitleTooLong(t *testing.T) {
	ctx := callerCtx("user1")
	repo := &mocks.ThreadRepository{}
	limiter := &mocks.Admitter{}
	limiter.On("Admit", ctx, ratelimit.CreateThread, "user1").Return(nil)

	_, err := thread.NewService(repo, limiter, nil).Create(ctx, thread.CreateRequest{Title: strings.Repeat("t", 101)})
	var vErr *validation.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "title", vErr.Field)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestThreadService_ArchiveForeignOwner(t *testing.T) {
	ctx := callerCtx("user2")
	repo := &mocks.ThreadRepository{}
	limiter := &mocks.Admitter{}
	limiter.On("Admit", ctx, ratelimit.UpdateThread, "user2").Return(nil)
	repo.On("Get", ctx, "th1").Return(&thread.Thread{ID: "th1", OwnerID: "user1", Status: thread.StatusActive}, nil)

	_, err := thread.NewService(repo, limiter, nil).Archive(ctx, "th1")
	require.ErrorIs(t, err, access.ErrForbidden)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestThreadService_Archive(t *testing.T) {
	ctx := callerCtx("user1")
	repo := &mocks.ThreadRepository{}
	limiter := &mocks.Admitter{}
	limiter.On("Admit", ctx, ratelimit.UpdateThread, "user1").Return(nil)
	repo.On("Get", ctx, "th1").Return(&thread.Thread{ID: "th1", OwnerID: "user1", Status: thread.StatusActive}, nil)
	repo.On("Update", ctx, mock.MatchedBy(func(th *thread.Thread) bool {
		return th.Status == thread.StatusArchived
	}), mock.Anything).Return(nil)

	th, err := thread.NewService(repo, limiter, nil).Archive(ctx, "th1")
	require.NoError(t, err)
	require.Equal(t, thread.StatusArchived, th.Status)
	repo.AssertExpectations(t)
}

func TestThreadService_RenameValidatesBeforeFetch(t *testing.T) {
	ctx := callerCtx("user1")
	repo := &mocks.ThreadRepository{}
	limiter := &mocks.Admitter{}
	limiter.On("Admit", ctx, ratelimit.UpdateThread, "user1").Return(nil)

	_, err := thread.NewService(repo, limiter, nil).Rename(ctx, "th1", " ")
	var vErr *validation.ValidationError
	require.True(t, errors.As(err, &vErr))
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestThreadService_DeleteNotFound(t *testing.T) {
	ctx := callerCtx("user1")
	repo := &mocks.ThreadRepository{}
	limiter := &mocks.Admitter{}
	limiter.On("Admit", ctx, ratelimit.DeleteThread, "user1").Return(nil)
	repo.On("Get", ctx, "gone").Return((*thread.Thread)(nil), repository.ErrNotFound)

	err := thread.NewService(repo, limiter, nil).Delete(ctx, "gone")
	require.ErrorIs(t, err, access.ErrNotFound)
}

func TestThreadService_ListByStatusRejectsUnknown(t *testing.T) {
	ctx := callerCtx("user1")
	repo := &mocks.ThreadRepository{}

	_, err := thread.NewService(repo, &mocks.Admitter{}, nil).ListByStatus(ctx, thread.Status("deleted"))
	var vErr *validation.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "status", vErr.Field)
}
