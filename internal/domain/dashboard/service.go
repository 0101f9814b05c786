package dashboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/domain/task"
)

// DefaultRecentLimit is the number of recent items returned when no limit is given.
const DefaultRecentLimit = 5

// Counter counts the records a user owns in one store.
type Counter interface {
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// TaskReader is the task access the dashboard needs.
type TaskReader interface {
	Counter
	ListByOwner(ctx context.Context, ownerID string) ([]task.Task, error)
	ListRecent(ctx context.Context, ownerID string, limit int) ([]task.Task, error)
}

// Sources is the fixed set of stores the summary aggregates over.
type Sources struct {
	Tasks    TaskReader
	Threads  Counter
	Messages Counter
}

// Summary counts a user's records per store.
type Summary struct {
	TotalRecords int `json:"total_records"`
	Tasks        int `json:"tasks"`
	Threads      int `json:"threads"`
	Messages     int `json:"messages"`
	PrimaryCount int `json:"primary_count"`
}

// RecentItem is a compact view of a recently created task.
type RecentItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PeriodCounts counts tasks created in a period and how many of those are done.
type PeriodCounts struct {
	Created   int `json:"created"`
	Completed int `json:"completed"`
}

// Productivity reports recent task activity.
type Productivity struct {
	Today    PeriodCounts `json:"today"`
	ThisWeek PeriodCounts `json:"this_week"`
	Overdue  int          `json:"overdue"`
}

// Service builds dashboard views for the authenticated caller.
type Service struct {
	sources Sources
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new dashboard service.
func NewService(sources Sources, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{sources: sources, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary returns per-store record counts for the caller.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return Summary{}, err
	}

	counts, total, err := countAll(ctx, caller.ID, s.sources.Tasks, s.sources.Threads, s.sources.Messages)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		TotalRecords: total,
		Tasks:        counts[0],
		Threads:      counts[1],
		Messages:     counts[2],
		PrimaryCount: counts[0],
	}, nil
}

// countAll queries each counter in order and returns the individual counts and their sum.
func countAll(ctx context.Context, ownerID string, counters ...Counter) ([]int, int, error) {
	counts := make([]int, len(counters))
	total := 0
	for i, c := range counters {
		n, err := c.CountByOwner(ctx, ownerID)
		if err != nil {
			return nil, 0, fmt.Errorf("counting records: %w", err)
		}
		counts[i] = n
		total += n
	}
	return counts, total, nil
}

// Recent returns the caller's newest tasks in compact form.
func (s *Service) Recent(ctx context.Context, limit int) ([]RecentItem, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	tasks, err := s.sources.Tasks.ListRecent(ctx, caller.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent tasks: %w", err)
	}

	items := make([]RecentItem, 0, len(tasks))
	for _, t := range tasks {
		name := t.Title
		if name == "" {
			name = "Untitled"
		}
		status := "pending"
		if t.Completed {
			status = "completed"
		}
		items = append(items, RecentItem{ID: t.ID, Name: name, Status: status, UpdatedAt: t.UpdatedAt})
	}
	return items, nil
}

// Productivity counts tasks created in the last day and week, and overdue tasks.
func (s *Service) Productivity(ctx context.Context) (Productivity, error) {
	caller, err := access.RequireCaller(ctx)
	if err != nil {
		return Productivity{}, err
	}

	tasks, err := s.sources.Tasks.ListByOwner(ctx, caller.ID)
	if err != nil {
		return Productivity{}, fmt.Errorf("listing tasks: %w", err)
	}

	now := s.now()
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	var p Productivity
	for _, t := range tasks {
		if !t.CreatedAt.Before(dayAgo) {
			p.Today.Created++
			if t.Completed {
				p.Today.Completed++
			}
		}
		if !t.CreatedAt.Before(weekAgo) {
			p.ThisWeek.Created++
			if t.Completed {
				p.ThisWeek.Completed++
			}
		}
		if !t.Completed && t.DueDate != nil && t.DueDate.Before(now) {
			p.Overdue++
		}
	}
	return p, nil
}
