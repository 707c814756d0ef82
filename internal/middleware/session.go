package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/citafacil/citafacil/internal/auth"
	"github.com/citafacil/citafacil/internal/identity"
	"github.com/citafacil/citafacil/internal/model"
)

// SessionSource exposes the process-wide active session.
type SessionSource interface {
	Current() (*model.Session, identity.State)
}

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// SessionConfig configures RequireSession.
type SessionConfig struct {
	Sessions SessionSource
	Tokens   TokenParser
	Logger   *slog.Logger
}

// RequireSession admits requests whose bearer token was issued for the
// active session. It answers 503 while the session is still being
// restored and 401 for any other mismatch.
func RequireSession(cfg SessionConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, state := cfg.Sessions.Current()
			if state == identity.StateLoading {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusServiceUnavailable, "SESSION_LOADING", "Session is still loading")
				return
			}

			reason := ""
			raw := BearerToken(r)
			switch {
			case raw == "":
				reason = "missing_token"
			case sess == nil:
				reason = "no_active_session"
			}

			var claims *auth.Claims
			if reason == "" {
				var err error
				claims, err = cfg.Tokens.Parse(raw)
				switch {
				case err != nil:
					reason = "invalid_token"
				case claims.SessionID != sess.ID || claims.UserID != sess.UserID:
					reason = "stale_session"
				}
			}

			if reason != "" {
				logger.WarnContext(r.Context(), "authentication failed",
					slog.String("reason", reason),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please log in to continue")
				return
			}

			setLogUser(r, sess.UserID)
			ctx := auth.ContextWithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the token of a "Bearer" Authorization header, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
