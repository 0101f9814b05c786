package mcp

import (
	"context"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/taskflow/internal/domain/message"
	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/validation"
)

// addTool registers a tool whose domain errors become structured tool errors.
func addTool[In any](server *sdkmcp.Server, logger *slog.Logger, name, description string, run func(context.Context, In) (any, error)) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: name, Description: description},
		func(ctx context.Context, _ *sdkmcp.CallToolRequest, in In) (*sdkmcp.CallToolResult, any, error) {
			out, err := run(ctx, in)
			if err != nil {
				if apiErr := MapError(err); apiErr.Code == CodeInternal {
					logger.Error("tool failed", "tool", name, "caller", callerID(ctx), "error", err)
				}
				return errorResult(err), nil, nil
			}
			return nil, out, nil
		})
}

func registerTools(server *sdkmcp.Server, svc Services, logger *slog.Logger) {
	if svc.Tasks != nil {
		registerTaskTools(server, svc.Tasks, logger)
	}
	if svc.Threads != nil {
		registerThreadTools(server, svc.Threads, logger)
	}
	if svc.Messages != nil {
		registerMessageTools(server, svc.Messages, logger)
	}
	if svc.Dashboard != nil {
		registerDashboardTools(server, svc.Dashboard, logger)
	}
}

func registerTaskTools(server *sdkmcp.Server, tasks TaskService, logger *slog.Logger) {
	addTool(server, logger, "create_task", "Create a task owned by the caller",
		func(ctx context.Context, p CreateTaskParams) (any, error) {
			req := task.CreateRequest{
				Title:       validation.Sanitize(p.Title),
				Description: validation.Sanitize(p.Description),
				Priority:    p.Priority,
			}
			if p.DueDate != "" {
				due, err := parseDueDate(p.DueDate)
				if err != nil {
					return nil, err
				}
				req.DueDate = &due
			}
			return tasks.Create(ctx, req)
		})

	addTool(server, logger, "update_task", "Update fields of a task the caller owns",
		func(ctx context.Context, p UpdateTaskParams) (any, error) {
			req := task.UpdateRequest{
				ID:          p.ID,
				Title:       sanitizePtr(p.Title),
				Description: sanitizePtr(p.Description),
				Priority:    p.Priority,
				Completed:   p.Completed,
			}
			if p.DueDate != nil {
				if *p.DueDate == "" {
					req.ClearDueDate = true
				} else {
					due, err := parseDueDate(*p.DueDate)
					if err != nil {
						return nil, err
					}
					req.DueDate = &due
				}
			}
			return tasks.Update(ctx, req)
		})

	addTool(server, logger, "toggle_task", "Flip the completion flag of a task the caller owns",
		func(ctx context.Context, p IDParams) (any, error) {
			return tasks.ToggleComplete(ctx, p.ID)
		})

	addTool(server, logger, "delete_task", "Delete a task the caller owns",
		func(ctx context.Context, p IDParams) (any, error) {
			if err := tasks.Delete(ctx, p.ID); err != nil {
				return nil, err
			}
			return DeleteResult{ID: p.ID, Deleted: true}, nil
		})

	addTool(server, logger, "get_task", "Get one of the caller's tasks",
		func(ctx context.Context, p IDParams) (any, error) {
			return tasks.Get(ctx, p.ID)
		})

	addTool(server, logger, "list_tasks", "List the caller's tasks, newest first",
		func(ctx context.Context, p ListTasksParams) (any, error) {
			var (
				list []task.Task
				err  error
			)
			switch p.Status {
			case "", "all":
				list, err = tasks.List(ctx)
			case "completed":
				list, err = tasks.ListByStatus(ctx, true)
			case "pending":
				list, err = tasks.ListByStatus(ctx, false)
			default:
				return nil, validation.Fail("status", "must be all, completed or pending")
			}
			if err != nil {
				return nil, err
			}
			return TaskListResult{Tasks: list, Count: len(list)}, nil
		})

	addTool(server, logger, "list_upcoming_tasks", "List the caller's tasks with a due date, soonest first",
		func(ctx context.Context, p LimitParams) (any, error) {
			limit := p.Limit
			if limit == 0 {
				limit = task.DefaultUpcomingLimit
			}
			list, err := tasks.ListUpcoming(ctx, limit)
			if err != nil {
				return nil, err
			}
			return TaskListResult{Tasks: list, Count: len(list)}, nil
		})

	addTool(server, logger, "list_recent_tasks", "List the caller's most recently created tasks",
		func(ctx context.Context, p LimitParams) (any, error) {
			list, err := tasks.ListRecent(ctx, p.Limit)
			if err != nil {
				return nil, err
			}
			return TaskListResult{Tasks: list, Count: len(list)}, nil
		})

	addTool(server, logger, "task_stats", "Count the caller's tasks by completion",
		func(ctx context.Context, _ EmptyParams) (any, error) {
			return tasks.Stats(ctx)
		})
}

func registerThreadTools(server *sdkmcp.Server, threads ThreadService, logger *slog.Logger) {
	addTool(server, logger, "create_thread", "Start a conversation thread",
		func(ctx context.Context, p CreateThreadParams) (any, error) {
			return threads.Create(ctx, thread.CreateRequest{Title: validation.Sanitize(p.Title)})
		})

	addTool(server, logger, "get_thread", "Get one of the caller's threads",
		func(ctx context.Context, p IDParams) (any, error) {
			return threads.Get(ctx, p.ID)
		})

	addTool(server, logger, "list_threads", "List the caller's threads, newest first",
		func(ctx context.Context, p ListThreadsParams) (any, error) {
			var (
				list []thread.Thread
				err  error
			)
			if p.Status == "" {
				list, err = threads.List(ctx)
			} else {
				list, err = threads.ListByStatus(ctx, p.Status)
			}
			if err != nil {
				return nil, err
			}
			return ThreadListResult{Threads: list, Count: len(list)}, nil
		})

	addTool(server, logger, "rename_thread", "Change the title of a thread the caller owns",
		func(ctx context.Context, p RenameThreadParams) (any, error) {
			return threads.Rename(ctx, p.ID, validation.Sanitize(p.Title))
		})

	addTool(server, logger, "archive_thread", "Archive a thread the caller owns",
		func(ctx context.Context, p IDParams) (any, error) {
			return threads.Archive(ctx, p.ID)
		})

	addTool(server, logger, "delete_thread", "Delete a thread the caller owns together with its messages",
		func(ctx context.Context, p IDParams) (any, error) {
			if err := threads.Delete(ctx, p.ID); err != nil {
				return nil, err
			}
			return DeleteResult{ID: p.ID, Deleted: true}, nil
		})
}

func registerMessageTools(server *sdkmcp.Server, messages MessageService, logger *slog.Logger) {
	addTool(server, logger, "send_message", "Append a message to a thread the caller owns",
		func(ctx context.Context, p SendMessageParams) (any, error) {
			return messages.Send(ctx, message.SendRequest{
				ThreadID: p.ThreadID,
				Role:     p.Role,
				Content:  validation.Sanitize(p.Content),
			})
		})

	addTool(server, logger, "list_messages", "List a thread's messages, oldest first",
		func(ctx context.Context, p ListMessagesParams) (any, error) {
			list, err := messages.List(ctx, p.ThreadID, p.Limit)
			if err != nil {
				return nil, err
			}
			return MessageListResult{Messages: list, Count: len(list)}, nil
		})

	addTool(server, logger, "latest_message", "Get the newest message in a thread",
		func(ctx context.Context, p ThreadIDParams) (any, error) {
			m, err := messages.Latest(ctx, p.ThreadID)
			if err != nil {
				return nil, err
			}
			return LatestMessageResult{Message: m}, nil
		})

	addTool(server, logger, "delete_message", "Delete a message the caller wrote",
		func(ctx context.Context, p IDParams) (any, error) {
			if err := messages.Delete(ctx, p.ID); err != nil {
				return nil, err
			}
			return DeleteResult{ID: p.ID, Deleted: true}, nil
		})
}

func registerDashboardTools(server *sdkmcp.Server, dash DashboardService, logger *slog.Logger) {
	addTool(server, logger, "dashboard_summary", "Count the caller's tasks, threads and messages",
		func(ctx context.Context, _ EmptyParams) (any, error) {
			return dash.Summary(ctx)
		})

	addTool(server, logger, "dashboard_recent", "List the caller's recent tasks in compact form",
		func(ctx context.Context, p LimitParams) (any, error) {
			items, err := dash.Recent(ctx, p.Limit)
			if err != nil {
				return nil, err
			}
			return RecentResult{Items: items}, nil
		})

	addTool(server, logger, "dashboard_productivity", "Report tasks created and completed today and this week, and overdue tasks",
		func(ctx context.Context, _ EmptyParams) (any, error) {
			return dash.Productivity(ctx)
		})
}

func parseDueDate(value string) (time.Time, error) {
	due, ok := validation.ParseDueDate(value)
	if !ok {
		return time.Time{}, validation.Fail("due_date", "must be an RFC 3339 time, a YYYY-MM-DD date or unix milliseconds")
	}
	return due, nil
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := validation.Sanitize(*s)
	return &v
}
