package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/validation"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"unauthenticated", access.ErrUnauthenticated, CodeUnauthenticated},
		{"forbidden", fmt.Errorf("delete: %w", access.ErrForbidden), CodeForbidden},
		{"validation", validation.Fail("title", "required"), CodeValidationFailed},
		{"rate limited", &ratelimit.RateLimitError{Operation: ratelimit.CreateTask, RetryAfter: 1500 * time.Millisecond}, CodeRateLimited},
		{"not found", access.NotFound("task", "t1"), CodeNotFound},
		{"conflict", access.ErrConflict, CodeConflict},
		{"storage", errors.New("disk I/O error"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}

	require.Nil(t, MapError(nil))
}

func TestMapError_Details(t *testing.T) {
	apiErr := MapError(&ratelimit.RateLimitError{Operation: ratelimit.Signup, RetryAfter: 3 * time.Second})
	require.Equal(t, map[string]any{"retry_after_ms": int64(3000)}, apiErr.Details)

	apiErr = MapError(validation.Fail("priority", "must be low, medium or high"))
	require.Equal(t, map[string]any{"field": "priority"}, apiErr.Details)
	require.Equal(t, "must be low, medium or high", apiErr.Message)

	apiErr = MapError(access.NotFound("thread", "th1"))
	require.Equal(t, "thread not found: th1", apiErr.Message)
}

func TestErrorResult(t *testing.T) {
	res := errorResult(access.ErrForbidden)
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)

	var apiErr APIError
	require.NoError(t, json.Unmarshal([]byte(text.Text), &apiErr))
	require.Equal(t, CodeForbidden, apiErr.Code)
}
