package functional_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// stdioSession wraps an MCP client session for stdio transport testing
type stdioSession struct {
	session *sdkmcp.ClientSession
	cancel  context.CancelFunc
}

func newStdioSession(t *testing.T) *stdioSession {
	t.Helper()
	return newStdioSessionWithEnv(t, nil)
}

func newStdioSessionWithEnv(t *testing.T, extraEnv []string) *stdioSession {
	t.Helper()

	// Find the binary
	binaryPath := "./bin/taskflow"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/taskflow"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("Server binary not found. Run 'make build' first.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"TASKFLOW_TRANSPORT=stdio",
		"TASKFLOW_DB_PATH=:memory:",
		"TASKFLOW_AUTH_ENABLED=false",
	)
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Env, extraEnv...)
	}

	transport := &sdkmcp.CommandTransport{Command: cmd}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
	})

	return &stdioSession{session: session, cancel: cancel}
}

func (s *stdioSession) call(t *testing.T, name string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	result, err := s.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool %s failed", name)
	require.NotEmpty(t, result.Content, "Tool %s returned no content", name)
	return result
}

func (s *stdioSession) callTool(t *testing.T, name string, args map[string]any) json.RawMessage {
	t.Helper()
	result := s.call(t, name, args)
	require.False(t, result.IsError, "Tool %s returned error", name)

	// Extract text content
	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			return json.RawMessage(textContent.Text)
		}
	}
	t.Fatalf("Tool %s returned no text content", name)
	return nil
}

func TestStdioFunctional_TaskWorkflow(t *testing.T) {
	s := newStdioSession(t)

	createResp := s.callTool(t, "create_task", map[string]any{
		"title":    "Write release notes",
		"priority": "medium",
		"due_date": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	var created struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
	}
	require.NoError(t, json.Unmarshal(createResp, &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "local", created.OwnerID)

	upcoming := s.callTool(t, "list_upcoming_tasks", nil)
	require.Contains(t, string(upcoming), created.ID)

	_ = s.callTool(t, "update_task", map[string]any{"id": created.ID, "completed": true})

	listResp := s.callTool(t, "list_tasks", map[string]any{"status": "completed"})
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(listResp, &list))
	require.Equal(t, 1, list.Count)
}

func TestStdioFunctional_ThreadConversation(t *testing.T) {
	s := newStdioSession(t)

	threadResp := s.callTool(t, "create_thread", map[string]any{"title": "Planning"})
	var thread struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(threadResp, &thread))

	for _, content := range []string{"first", "second"} {
		_ = s.callTool(t, "send_message", map[string]any{
			"thread_id": thread.ID,
			"role":      "user",
			"content":   content,
		})
	}

	latestResp := s.callTool(t, "latest_message", map[string]any{"thread_id": thread.ID})
	require.Contains(t, string(latestResp), "second")

	_ = s.callTool(t, "delete_thread", map[string]any{"id": thread.ID})

	summary := s.callTool(t, "dashboard_summary", nil)
	var stats struct {
		Messages int `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(summary, &stats))
	require.Zero(t, stats.Messages)
}

func TestStdioFunctional_ValidationError(t *testing.T) {
	s := newStdioSession(t)

	result := s.call(t, "create_task", map[string]any{"title": "   "})
	require.True(t, result.IsError)

	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	require.Contains(t, text.Text, "VALIDATION_FAILED")
	require.Contains(t, text.Text, `"field":"title"`)
}

func TestStdioFunctional_MCPProtocolCompliance(t *testing.T) {
	s := newStdioSession(t)

	// Verify server info from initialization
	initResult := s.session.InitializeResult()
	require.NotNil(t, initResult)
	require.NotNil(t, initResult.ServerInfo)
	require.Equal(t, "taskflow", initResult.ServerInfo.Name)
	require.Equal(t, "0.1.0", initResult.ServerInfo.Version)

	// Test tools/list
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tools, err := s.session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Greater(t, len(tools.Tools), 15, "should have at least 16 tools")

	// Verify expected tools exist with proper metadata
	toolMap := make(map[string]*sdkmcp.Tool)
	for _, tool := range tools.Tools {
		toolMap[tool.Name] = tool
	}

	require.Contains(t, toolMap, "create_task")
	require.Contains(t, toolMap, "send_message")
	require.Contains(t, toolMap, "dashboard_summary")
	require.NotEmpty(t, toolMap["create_task"].Description)
}

func TestStdioFunctional_LogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "taskflow.log")
	s := newStdioSessionWithEnv(t, []string{
		"TASKFLOW_LOG_PATH=" + logPath,
		"TASKFLOW_LOG_LEVEL=debug",
	})

	_ = s.callTool(t, "list_tasks", nil)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		if err != nil {
			return false
		}
		text := string(data)
		return strings.Contains(text, `msg="mcp traffic"`) &&
			strings.Contains(text, "stage=request") &&
			strings.Contains(text, "stage=response")
	}, 5*time.Second, 100*time.Millisecond)
}

func TestStdioFunctional_DocumentationResources(t *testing.T) {
	s := newStdioSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resources, err := s.session.ListResources(ctx, nil)
	require.NoError(t, err)

	uris := make(map[string]*sdkmcp.Resource, len(resources.Resources))
	for _, r := range resources.Resources {
		uris[r.URI] = r
	}

	for _, uri := range []string{"taskflow://docs/limits", "taskflow://docs/validation"} {
		r, ok := uris[uri]
		require.True(t, ok, "missing expected doc resource: %s", uri)
		require.Equal(t, "text/markdown", r.MIMEType)
		require.Greater(t, r.Size, int64(0))
	}

	read, err := s.session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "taskflow://docs/limits"})
	require.NoError(t, err)
	require.NotEmpty(t, read.Contents)
	require.Contains(t, read.Contents[0].Text, "# Rate limits")
}
