package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/repository"
	"github.com/rpggio/taskflow/internal/validation"
)

// Registrar creates a user and its first API key. It returns
// repository.ErrConflict when the user ID is already taken.
type Registrar interface {
	Register(ctx context.Context, userID, description string) (string, error)
}

type signupRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
}

type signupResponse struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// SignupHandler registers a new user and returns its API key. Existing user
// IDs are refused so signup never grants access to someone else's data. Requests are limited per
// client address under the signup operation.
type SignupHandler struct {
	users   Registrar
	limiter Admitter
	logger  *slog.Logger
}

// NewSignupHandler creates a SignupHandler.
func NewSignupHandler(users Registrar, limiter Admitter, logger *slog.Logger) *SignupHandler {
	return &SignupHandler{users: users, limiter: limiter, logger: logger}
}

func (h *SignupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	addr := clientAddress(r)
	if err := h.limiter.Admit(r.Context(), ratelimit.Signup, addr); err != nil {
		var rateErr *ratelimit.RateLimitError
		if errors.As(err, &rateErr) {
			writeRateLimited(w, "too many signups", rateErr.RetryAfter)
			return
		}
		h.fail(w, "signup rate limit check failed", err)
		return
	}

	var req signupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "request body must be JSON", nil)
		return
	}
	req.UserID = validation.Sanitize(req.UserID)
	if !validation.UserID(req.UserID) {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "user_id must be 1 to 100 characters", map[string]any{"field": "user_id"})
		return
	}
	if req.Email != "" && !validation.Email(req.Email) {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "email is not valid", map[string]any{"field": "email"})
		return
	}

	description := req.Description
	if description == "" {
		description = req.Email
	}
	key, err := h.users.Register(r.Context(), req.UserID, validation.Sanitize(description))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			writeError(w, http.StatusConflict, "CONFLICT", "user_id is already registered", map[string]any{"field": "user_id"})
			return
		}
		h.fail(w, "registering user failed", err)
		return
	}

	if h.logger != nil {
		h.logger.Info("user registered", "user_id", req.UserID, "addr", addr)
	}
	writeJSON(w, http.StatusCreated, signupResponse{UserID: req.UserID, APIKey: key})
}

func (h *SignupHandler) fail(w http.ResponseWriter, msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err)
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
