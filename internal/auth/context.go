// Package auth carries the authenticated user through a request context.
// Both middleware and handlers import it, so it must not depend on either.
package auth

import (
	"context"
	"net/http"

	"github.com/quill-app/quill/internal/domain"
)

type contextKey struct{}

var userContextKey contextKey

// GetUser returns the authenticated user stored in ctx, or nil when the
// request is anonymous.
func GetUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userContextKey).(*domain.User)
	return user
}

// GetUserFromRequest is a shorthand for GetUser(r.Context()).
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser returns a context carrying user. Called by the session
// middleware once a token resolves.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
