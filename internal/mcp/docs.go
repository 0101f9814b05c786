package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `taskflow keeps a private task list and conversation threads for each user.

Every tool acts as the authenticated caller and only ever sees the caller's own records.

Writes are rate limited per user and operation. A RATE_LIMITED error carries
details.retry_after_ms; wait at least that long before retrying the same tool.

Errors come back as JSON {code, message, details, recovery_hint} with code one of
UNAUTHENTICATED, FORBIDDEN, VALIDATION_FAILED, RATE_LIMITED, NOT_FOUND, CONFLICT.

Docs:
- taskflow://docs/limits (per-operation budgets)
- taskflow://docs/validation (field rules)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "taskflow://docs/limits",
		Name:        "docs_limits",
		Title:       "Rate limits",
		Description: "Default admission budgets for each write operation.",
		Content: `# Rate limits

Limits are per user and operation. Token buckets refill continuously; fixed windows reset on aligned boundaries.

| Operation | Algorithm | Budget |
|---|---|---|
| create_task | token bucket | 30/min, burst 5 |
| update_task, toggle_task | token bucket | 60/min, burst 10 |
| delete_task | token bucket | 20/min, burst 3 |
| send_message | token bucket | 20/min, burst 3 |
| delete_message | token bucket | 20/min, burst 3 |
| create_thread | token bucket | 10/min, burst 2 |
| rename_thread, archive_thread | token bucket | 30/min, burst 5 |
| delete_thread | token bucket | 20/min, burst 3 |
| signup (HTTP) | fixed window | 5/hour per address |
| failed logins (HTTP) | fixed window | 10/hour per address |

Operators may override any of these in configuration. Reads are never limited.
`,
	},
	{
		URI:         "taskflow://docs/validation",
		Name:        "docs_validation",
		Title:       "Field rules",
		Description: "What each write tool accepts.",
		Content: `# Field rules

- Task title: required, at most 200 characters.
- Task description: at most 2000 characters.
- Priority: low, medium or high.
- Due date: RFC 3339, YYYY-MM-DD or unix milliseconds; must not be in the past when written.
- Thread title: at most 100 characters.
- Message content: required, at most 5000 characters. Role is user or assistant.

Angle brackets are stripped and surrounding whitespace trimmed from free text.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
