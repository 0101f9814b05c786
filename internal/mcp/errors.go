package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/validation"
)

// Error codes returned to clients.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. Storage failures keep
// their message under the INTERNAL code.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var (
		validationErr *validation.ValidationError
		rateErr       *ratelimit.RateLimitError
		notFoundErr   *access.NotFoundError
	)
	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		return &APIError{Code: CodeUnauthenticated, Message: "authentication required", RecoveryHint: "Send a valid bearer token"}
	case errors.Is(err, access.ErrForbidden):
		return &APIError{Code: CodeForbidden, Message: "record belongs to another user"}
	case errors.As(err, &validationErr):
		return &APIError{Code: CodeValidationFailed, Message: validationErr.Message, Details: map[string]any{"field": validationErr.Field}, RecoveryHint: "Fix the named field and retry"}
	case errors.As(err, &rateErr):
		return &APIError{
			Code:         CodeRateLimited,
			Message:      fmt.Sprintf("too many %s requests", rateErr.Operation),
			Details:      map[string]any{"retry_after_ms": rateErr.RetryAfterMs()},
			RecoveryHint: "Wait retry_after_ms before retrying",
		}
	case errors.As(err, &notFoundErr):
		return &APIError{Code: CodeNotFound, Message: notFoundErr.Error(), RecoveryHint: "Check ID spelling"}
	case errors.Is(err, access.ErrNotFound):
		return &APIError{Code: CodeNotFound, Message: err.Error(), RecoveryHint: "Check ID spelling"}
	case errors.Is(err, access.ErrConflict):
		return &APIError{Code: CodeConflict, Message: "record modified concurrently", RecoveryHint: "Reload and retry"}
	default:
		return &APIError{Code: CodeInternal, Message: err.Error()}
	}
}

// errorResult renders err as a tool error carrying the APIError as JSON.
func errorResult(err error) *sdkmcp.CallToolResult {
	apiErr := MapError(err)
	data, marshalErr := json.Marshal(apiErr)
	if marshalErr != nil {
		data = []byte(apiErr.Error())
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}
}
