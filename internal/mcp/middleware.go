package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/repository"
)

// CallerResolver resolves a user ID from a bearer token.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, token string) (string, error)
}

// authMiddleware attaches the caller identified by the bearer token. A caller
// already placed on the context by the HTTP layer is kept as is.
func authMiddleware(resolver CallerResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}
			if _, ok := access.CallerFromContext(ctx); ok {
				return next(ctx, method, req)
			}

			token := bearerToken(req)
			if token == "" || resolver == nil {
				return nil, access.ErrUnauthenticated
			}

			userID, err := resolver.ResolveCaller(ctx, token)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("resolving caller: %w", err)
			}
			if err != nil || userID == "" {
				return nil, access.ErrUnauthenticated
			}

			return next(access.WithCaller(ctx, access.Caller{ID: userID}), method, req)
		}
	}
}

// noAuthMiddleware injects a default caller when auth is disabled.
func noAuthMiddleware(defaultUser string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			ctx = access.WithCaller(ctx, access.Caller{ID: defaultUser})
			return next(ctx, method, req)
		}
	}
}

func bearerToken(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	extra := req.GetExtra()
	if extra == nil || extra.Header == nil {
		return ""
	}
	auth := extra.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func callerID(ctx context.Context) string {
	caller, _ := access.CallerFromContext(ctx)
	return caller.ID
}
