package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options wires the HTTP surface.
type Options struct {
	// MCP serves the streamable MCP endpoint.
	MCP http.Handler
	// Auth guards /mcp. Nil leaves it open.
	Auth func(http.Handler) http.Handler
	// Ingress throttles every route except /health. Nil disables it.
	Ingress *IngressLimiter
	// Signup serves POST /signup. Nil disables the route.
	Signup http.Handler
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

// NewServer creates an HTTP server router with middleware.
func NewServer(opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if opts.Ingress != nil {
			r.Use(opts.Ingress.Middleware)
		}

		if opts.Signup != nil {
			r.Method(http.MethodPost, "/signup", opts.Signup)
		}

		if opts.MCP != nil {
			r.Group(func(r chi.Router) {
				if opts.Auth != nil {
					r.Use(opts.Auth)
				}
				r.Handle("/mcp", opts.MCP)
				r.Handle("/mcp/*", opts.MCP)
			})
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
