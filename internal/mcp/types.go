package mcp

import (
	"github.com/rpggio/taskflow/internal/domain/dashboard"
	"github.com/rpggio/taskflow/internal/domain/message"
	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/domain/thread"
)

type EmptyParams struct{}

type IDParams struct {
	ID string `json:"id" jsonschema:"record identifier"`
}

type LimitParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of items"`
}

type CreateTaskParams struct {
	Title       string `json:"title" jsonschema:"task title, 1 to 200 characters"`
	Description string `json:"description,omitempty" jsonschema:"optional details, up to 2000 characters"`
	Priority    string `json:"priority,omitempty" jsonschema:"low, medium or high"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"RFC 3339 time, YYYY-MM-DD date or unix milliseconds; must not be in the past"`
}

type UpdateTaskParams struct {
	ID          string  `json:"id" jsonschema:"task identifier"`
	Title       *string `json:"title,omitempty" jsonschema:"new title"`
	Description *string `json:"description,omitempty" jsonschema:"new description"`
	Priority    *string `json:"priority,omitempty" jsonschema:"low, medium or high"`
	DueDate     *string `json:"due_date,omitempty" jsonschema:"new due date; an empty string clears it"`
	Completed   *bool   `json:"completed,omitempty" jsonschema:"completion flag"`
}

type ListTasksParams struct {
	Status string `json:"status,omitempty" jsonschema:"all (default), completed or pending"`
}

type CreateThreadParams struct {
	Title string `json:"title,omitempty" jsonschema:"optional title, up to 100 characters"`
}

type ListThreadsParams struct {
	Status thread.Status `json:"status,omitempty" jsonschema:"active or archived; omit for all"`
}

type RenameThreadParams struct {
	ID    string `json:"id" jsonschema:"thread identifier"`
	Title string `json:"title" jsonschema:"new title"`
}

type SendMessageParams struct {
	ThreadID string       `json:"thread_id" jsonschema:"thread to append to"`
	Role     message.Role `json:"role,omitempty" jsonschema:"user (default) or assistant"`
	Content  string       `json:"content" jsonschema:"message text, up to 5000 characters"`
}

type ListMessagesParams struct {
	ThreadID string `json:"thread_id" jsonschema:"thread identifier"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of messages, oldest first"`
}

type ThreadIDParams struct {
	ThreadID string `json:"thread_id" jsonschema:"thread identifier"`
}

type TaskListResult struct {
	Tasks []task.Task `json:"tasks"`
	Count int         `json:"count"`
}

type ThreadListResult struct {
	Threads []thread.Thread `json:"threads"`
	Count   int             `json:"count"`
}

type MessageListResult struct {
	Messages []message.Message `json:"messages"`
	Count    int               `json:"count"`
}

type LatestMessageResult struct {
	Message *message.Message `json:"message"`
}

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type RecentResult struct {
	Items []dashboard.RecentItem `json:"items"`
}
