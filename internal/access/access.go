package access

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated indicates no caller identity is attached to the request.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden indicates the caller does not own the target record.
	ErrForbidden = errors.New("not authorized")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the record changed between fetch and write.
	ErrConflict = errors.New("record was modified concurrently")
)

// NotFoundError names the entity kind and id that could not be found.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound returns a NotFoundError for entity and id.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Caller is the authenticated identity a request acts as.
type Caller struct {
	ID string
}

type callerKey struct{}

// WithCaller attaches caller to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller attached to ctx, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok && caller.ID != ""
}

// RequireCaller returns the caller on ctx or ErrUnauthenticated.
func RequireCaller(ctx context.Context) (Caller, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return Caller{}, ErrUnauthenticated
	}
	return caller, nil
}

// AssertOwned returns ErrForbidden unless ownerID equals callerID.
// It never reads storage; callers fetch the record first.
func AssertOwned(ownerID, callerID string) error {
	if ownerID == "" || ownerID != callerID {
		return ErrForbidden
	}
	return nil
}
