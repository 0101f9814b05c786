package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpggio/taskflow/internal/access"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/repository"
	"github.com/stretchr/testify/require"
)

type testResolver struct {
	tokenToUser map[string]string
	err         error
}

func (r *testResolver) ResolveCaller(_ context.Context, token string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	userID, ok := r.tokenToUser[token]
	if !ok {
		return "", repository.ErrNotFound
	}
	return userID, nil
}

func newTestLimiter() *ratelimit.Limiter {
	now := func() time.Time { return time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC) }
	return ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.DefaultConfigs(), ratelimit.WithClock(now))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	resolver := &testResolver{tokenToUser: map[string]string{"token": "user1"}}

	handler := AuthMiddleware(resolver, newTestLimiter(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := access.CallerFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "user1", caller.ID)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Invalid(t *testing.T) {
	resolver := &testResolver{err: repository.ErrNotFound}

	handler := AuthMiddleware(resolver, newTestLimiter(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_ResolverFailure(t *testing.T) {
	resolver := &testResolver{
		tokenToUser: map[string]string{"token": "user1"},
		err:         errors.New("database is locked"),
	}
	handler := AuthMiddleware(resolver, newTestLimiter(), nil)(okHandler())

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 12; i++ {
		rec := do("token")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Contains(t, rec.Body.String(), "INTERNAL")
	}

	// storage failures left the login budget untouched
	resolver.err = nil
	require.Equal(t, http.StatusUnauthorized, do("wrong").Code)
	require.Equal(t, http.StatusOK, do("token").Code)
}

func TestAuthMiddleware_Missing(t *testing.T) {
	handler := AuthMiddleware(&testResolver{}, nil, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_LoginLimit(t *testing.T) {
	resolver := &testResolver{tokenToUser: map[string]string{"token": "user1"}}
	handler := AuthMiddleware(resolver, newTestLimiter(), nil)(okHandler())

	do := func(token, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// login is a fixed window of 10 per hour
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusUnauthorized, do("wrong", "10.0.0.1:5000").Code)
	}

	rec := do("wrong", "10.0.0.1:5001")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	// window started at 09:00, so the next one opens in 30 minutes
	require.Equal(t, "1800", rec.Header().Get("Retry-After"))

	// a different address has its own window
	require.Equal(t, http.StatusUnauthorized, do("wrong", "10.0.0.2:5000").Code)

	// valid tokens never spend login budget
	require.Equal(t, http.StatusOK, do("token", "10.0.0.1:5002").Code)
}

func TestDefaultCallerMiddleware(t *testing.T) {
	handler := DefaultCallerMiddleware("local")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := access.CallerFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "local", caller.ID)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4431"
	require.Equal(t, "203.0.113.7", clientAddress(req))

	req.RemoteAddr = "203.0.113.7"
	require.Equal(t, "203.0.113.7", clientAddress(req))

	req.RemoteAddr = ""
	require.Equal(t, "unknown", clientAddress(req))
}
