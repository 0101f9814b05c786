package mcp

import (
	"context"
	"io"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/taskflow/internal/domain/dashboard"
	"github.com/rpggio/taskflow/internal/domain/message"
	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/domain/thread"
)

// TaskService defines task operations needed by MCP.
type TaskService interface {
	Create(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	Update(ctx context.Context, req task.UpdateRequest) (*task.Task, error)
	ToggleComplete(ctx context.Context, id string) (*task.Task, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context) ([]task.Task, error)
	ListByStatus(ctx context.Context, completed bool) ([]task.Task, error)
	ListUpcoming(ctx context.Context, limit int) ([]task.Task, error)
	ListRecent(ctx context.Context, limit int) ([]task.Task, error)
	Stats(ctx context.Context) (task.Stats, error)
}

// ThreadService defines thread operations needed by MCP.
type ThreadService interface {
	Create(ctx context.Context, req thread.CreateRequest) (*thread.Thread, error)
	Get(ctx context.Context, id string) (*thread.Thread, error)
	List(ctx context.Context) ([]thread.Thread, error)
	ListByStatus(ctx context.Context, status thread.Status) ([]thread.Thread, error)
	Rename(ctx context.Context, id, title string) (*thread.Thread, error)
	Archive(ctx context.Context, id string) (*thread.Thread, error)
	Delete(ctx context.Context, id string) error
}

// MessageService defines message operations needed by MCP.
type MessageService interface {
	Send(ctx context.Context, req message.SendRequest) (*message.Message, error)
	List(ctx context.Context, threadID string, limit int) ([]message.Message, error)
	Latest(ctx context.Context, threadID string) (*message.Message, error)
	Delete(ctx context.Context, id string) error
}

// DashboardService defines dashboard views needed by MCP.
type DashboardService interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
	Recent(ctx context.Context, limit int) ([]dashboard.RecentItem, error)
	Productivity(ctx context.Context) (dashboard.Productivity, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Tasks     TaskService
	Threads   ThreadService
	Messages  MessageService
	Dashboard DashboardService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      CallerResolver
	AuthEnabled   bool
	DefaultUser   string
	TransportMode string // "stdio" or "http"
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "taskflow",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	// Stdio is a local, single-user transport.
	defaultUser := cfg.DefaultUser
	if defaultUser == "" {
		defaultUser = "local"
	}
	auth := authMiddleware(cfg.Resolver)
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		auth = noAuthMiddleware(defaultUser)
	}
	// The first middleware is outermost, so traffic logging sees the caller.
	server.AddReceivingMiddleware(auth, trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))

	registerTools(server, cfg.Services, logger)

	return server
}
