// Package identity resolves the acting user for each request and answers
// authorization questions about task ownership.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Role is an actor's platform role.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RolePublisher Role = "PUBLISHER"
	RoleWorker    Role = "WORKER"
)

// ParseRole normalizes a role name. Unknown names return false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RolePublisher, RoleWorker:
		return r, true
	default:
		return "", false
	}
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanPublish reports whether the actor may create tasks.
func (a Actor) CanPublish() bool {
	return a.Role == RoleAdmin || a.Role == RolePublisher
}

// CanManage reports whether the actor owns the task or is an administrator.
func (a Actor) CanManage(ownerID string) bool {
	return a.IsAdmin() || (a.ID != "" && a.ID == ownerID)
}

// CanUndo reports whether the actor may roll back a result recorded by workerID
// on a task owned by ownerID. Managers may undo any result; workers only their own.
func (a Actor) CanUndo(ownerID, workerID string) bool {
	return a.CanManage(ownerID) || (a.ID != "" && a.ID == workerID)
}

// Errors returned by providers and authorization checks.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// MapHTTPStatus maps identity errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type contextKey struct{}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// FromContext returns the actor stored by the middleware.
func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}
