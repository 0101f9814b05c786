package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/repository"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTask(id, owner string, created time.Time) *task.Task {
	return &task.Task{
		ID:        id,
		OwnerID:   owner,
		Title:     "Task " + id,
		Priority:  "medium",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestTaskRepository_CreateAndGet(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	due := baseTime.Add(48 * time.Hour)
	tk := newTask("t1", "user1", baseTime)
	tk.Description = "quarterly numbers"
	tk.DueDate = &due

	require.NoError(t, repo.Create(ctx, tk))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "user1", got.OwnerID)
	require.Equal(t, "quarterly numbers", got.Description)
	require.Equal(t, "medium", got.Priority)
	require.False(t, got.Completed)
	require.NotNil(t, got.DueDate)
	require.True(t, due.Equal(*got.DueDate))
	require.True(t, baseTime.Equal(got.CreatedAt))

	// Duplicate id
	require.Equal(t, repository.ErrConflict, repo.Create(ctx, tk))

	_, err = repo.Get(ctx, "missing")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestTaskRepository_ListOrdering(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTask("t1", "user1", baseTime)))
	require.NoError(t, repo.Create(ctx, newTask("t2", "user1", baseTime.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newTask("t3", "user2", baseTime.Add(2*time.Minute))))

	tasks, err := repo.ListByOwner(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "t2", tasks[0].ID)
	require.Equal(t, "t1", tasks[1].ID)

	empty, err := repo.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestTaskRepository_ListByCompletedAndUpcoming(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	soon := baseTime.Add(time.Hour)
	later := baseTime.Add(24 * time.Hour)

	a := newTask("a", "user1", baseTime)
	a.DueDate = &later
	b := newTask("b", "user1", baseTime.Add(time.Second))
	b.DueDate = &soon
	b.Completed = true
	c := newTask("c", "user1", baseTime.Add(2*time.Second))

	for _, tk := range []*task.Task{a, b, c} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	done, err := repo.ListByOwnerAndCompleted(ctx, "user1", true)
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, "b", done[0].ID)

	pending, err := repo.ListByOwnerAndCompleted(ctx, "user1", false)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	upcoming, err := repo.ListUpcoming(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	require.Equal(t, "b", upcoming[0].ID)
	require.Equal(t, "a", upcoming[1].ID)

	upcoming, err = repo.ListUpcoming(ctx, "user1", 1)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)

	recent, err := repo.ListRecent(ctx, "user1", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, []string{recent[0].ID, recent[1].ID})

	total, err := repo.CountByOwner(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, 3, total)

	completed, err := repo.CountCompletedByOwner(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, 1, completed)
}

func TestTaskRepository_UpdateOptimistic(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	repo.now = func() time.Time { return baseTime }
	ctx := context.Background()

	tk := newTask("t1", "user1", baseTime)
	require.NoError(t, repo.Create(ctx, tk))

	stale := tk.UpdatedAt
	tk.Title = "Renamed"
	tk.Completed = true
	require.NoError(t, repo.Update(ctx, tk, stale))
	require.True(t, tk.UpdatedAt.After(stale), "updated_at must move forward")

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)
	require.True(t, got.Completed)
	require.True(t, tk.UpdatedAt.Equal(got.UpdatedAt))

	// A writer holding the old version loses
	tk.Title = "Lost update"
	require.Equal(t, repository.ErrConflict, repo.Update(ctx, tk, stale))

	// Another owner cannot touch the row
	other := *got
	other.OwnerID = "user2"
	require.Equal(t, repository.ErrNotFound, repo.Update(ctx, &other, got.UpdatedAt))

	missing := newTask("missing", "user1", baseTime)
	require.Equal(t, repository.ErrNotFound, repo.Update(ctx, missing, baseTime))
}

func TestTaskRepository_ClearDueDate(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	due := baseTime.Add(time.Hour)
	tk := newTask("t1", "user1", baseTime)
	tk.DueDate = &due
	require.NoError(t, repo.Create(ctx, tk))

	tk.DueDate = nil
	require.NoError(t, repo.Update(ctx, tk, baseTime))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.Nil(t, got.DueDate)
}

func TestTaskRepository_Delete(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTask("t1", "user1", baseTime)))

	// Wrong owner
	require.Equal(t, repository.ErrNotFound, repo.Delete(ctx, "user2", "t1"))

	require.NoError(t, repo.Delete(ctx, "user1", "t1"))
	_, err := repo.Get(ctx, "t1")
	require.Equal(t, repository.ErrNotFound, err)

	require.Equal(t, repository.ErrNotFound, repo.Delete(ctx, "user1", "t1"))
}
