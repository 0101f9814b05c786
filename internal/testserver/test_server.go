package testserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/taskflow/internal/domain/dashboard"
	"github.com/rpggio/taskflow/internal/domain/message"
	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/mcp"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/sqlite"
	"github.com/rpggio/taskflow/internal/transport"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	Server  *httptest.Server
	DB      *sqlite.DB
	Keys    *sqlite.APIKeyStore
	Limiter *ratelimit.Limiter
	Token   string
	UserID  string
}

// New starts the full HTTP stack on an in-memory database and registers
// token for userID.
func New(t *testing.T, token, userID string) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	// Shared-cache connections take table locks that busy_timeout does not cover.
	db.SetMaxOpenConns(1)
	require.NoError(t, db.RunMigrations())

	limiter := ratelimit.New(sqlite.NewRateLimitStore(db), ratelimit.DefaultConfigs())

	taskRepo := sqlite.NewTaskRepository(db)
	threadRepo := sqlite.NewThreadRepository(db)
	messageRepo := sqlite.NewMessageRepository(db)
	keys := sqlite.NewAPIKeyStore(db)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Tasks:    task.NewService(taskRepo, limiter, nil),
			Threads:  thread.NewService(threadRepo, limiter, nil),
			Messages: message.NewService(messageRepo, threadRepo, limiter, nil),
			Dashboard: dashboard.NewService(dashboard.Sources{
				Tasks:    taskRepo,
				Threads:  threadRepo,
				Messages: messageRepo,
			}, nil),
		},
		Resolver:      keys,
		AuthEnabled:   true,
		TransportMode: "http",
	})

	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute},
	)

	server := httptest.NewServer(transport.NewServer(transport.Options{
		MCP:    mcpHandler,
		Auth:   transport.AuthMiddleware(keys, limiter, nil),
		Signup: transport.NewSignupHandler(keys, limiter, nil),
	}))

	ts := &TestServer{
		Server:  server,
		DB:      db,
		Keys:    keys,
		Limiter: limiter,
		Token:   token,
		UserID:  userID,
	}

	require.NoError(t, ts.AddAPIKey(token, userID))

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return ts
}

// AddAPIKey registers token for userID.
func (ts *TestServer) AddAPIKey(token, userID string) error {
	return ts.Keys.Add(context.Background(), token, userID, "test")
}

// Connect opens an MCP client session that authenticates with token.
func (ts *TestServer) Connect(t *testing.T, token string) *sdkmcp.ClientSession {
	t.Helper()

	httpClient := &http.Client{Transport: &bearerTransport{token: token, base: http.DefaultTransport}}
	clientTransport := &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: httpClient,
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (b *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.base.RoundTrip(req)
}
