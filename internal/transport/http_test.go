package transport

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpggio/taskflow/internal/access"
	"github.com/stretchr/testify/require"
)

// callerEcho writes the caller ID it sees.
func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := access.CallerFromContext(r.Context())
		_, _ = w.Write([]byte(caller.ID))
	})
}

func TestHTTPServer_MCP(t *testing.T) {
	resolver := &testResolver{tokenToUser: map[string]string{"token": "user1"}}
	server := httptest.NewServer(NewServer(Options{
		MCP:  callerEcho(),
		Auth: AuthMiddleware(resolver, newTestLimiter(), nil),
	}))
	t.Cleanup(server.Close)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/mcp", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "user1", string(body))

	unauth, err := http.Post(server.URL+"/mcp", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	unauth.Body.Close()
	require.Equal(t, http.StatusUnauthorized, unauth.StatusCode)
}

func TestHTTPServer_Health(t *testing.T) {
	server := httptest.NewServer(NewServer(Options{}))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_IngressSkipsHealth(t *testing.T) {
	clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	router := NewServer(Options{
		MCP:     callerEcho(),
		Auth:    DefaultCallerMiddleware("local"),
		Ingress: NewIngressLimiter(1, 1, WithIngressClock(clock.Now)),
	})

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do(http.MethodPost, "/mcp"))
	require.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/mcp"))
	require.Equal(t, http.StatusOK, do(http.MethodGet, "/health"))
}

func TestHTTPServer_SignupRoute(t *testing.T) {
	router := NewServer(Options{
		Signup: NewSignupHandler(&fakeRegistrar{}, newTestLimiter(), nil),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signup", bytes.NewBufferString(`{"user_id":"dana"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signup", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
