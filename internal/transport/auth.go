package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/repository"
)

// CallerResolver resolves a user ID from a bearer token.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, token string) (string, error)
}

// Admitter admits or denies a rate-limited operation for a subject.
type Admitter interface {
	Admit(ctx context.Context, op ratelimit.Operation, subject string) error
}

// AuthMiddleware enforces bearer token authentication and attaches the
// caller to the request context. Each failed resolution spends one login
// unit for the client address; once those run out the client gets 429
// until the window rolls.
func AuthMiddleware(resolver CallerResolver, limiter Admitter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
				return
			}

			userID, err := resolver.ResolveCaller(r.Context(), token)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				if logger != nil {
					logger.Error("resolving caller failed", "error", err)
				}
				writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
				return
			}
			if err == nil && userID != "" {
				ctx := access.WithCaller(r.Context(), access.Caller{ID: userID})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			addr := clientAddress(r)
			if limiter != nil {
				if limitErr := limiter.Admit(r.Context(), ratelimit.Login, addr); limitErr != nil {
					var rateErr *ratelimit.RateLimitError
					if errors.As(limitErr, &rateErr) {
						writeRateLimited(w, "too many failed logins", rateErr.RetryAfter)
						return
					}
					if logger != nil {
						logger.Error("login rate limit check failed", "addr", addr, "error", limitErr)
					}
				}
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid bearer token", nil)
		})
	}
}

// DefaultCallerMiddleware attaches a fixed caller when auth is disabled.
func DefaultCallerMiddleware(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := access.WithCaller(r.Context(), access.Caller{ID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientAddress is the host part of RemoteAddr.
func clientAddress(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}
