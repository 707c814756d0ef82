package auth

import (
	"context"

	"github.com/citafacil/citafacil/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const sessionContextKey contextKey = "session"

// ContextWithSession adds the authenticated session to the context.
func ContextWithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SessionFromContext retrieves the session from the context.
// Returns nil if not present.
func SessionFromContext(ctx context.Context) *model.Session {
	sess, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok {
		return nil
	}
	return sess
}

// UserIDFromContext is a convenience function to get user ID from context.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return ""
	}
	return sess.UserID
}
