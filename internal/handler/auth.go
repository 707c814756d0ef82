package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/citafacil/citafacil/internal/auth"
	"github.com/citafacil/citafacil/internal/handler/dto"
	"github.com/citafacil/citafacil/internal/identity"
	"github.com/citafacil/citafacil/internal/middleware"
	"github.com/citafacil/citafacil/internal/model"
)

// Identity is the account and session surface used by AuthHandler.
type Identity interface {
	Register(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Logout(ctx context.Context) string
	Current() (*model.Session, identity.State)
}

// SessionAppointments loads and releases a user's appointments as
// sessions start and end.
type SessionAppointments interface {
	Load(ctx context.Context, sess *model.Session) []model.Appointment
	Forget(sess *model.Session)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Make(userID, sessionID string) (string, error)
	TTL() time.Duration
}

// AuthHandler handles registration and the session lifecycle.
type AuthHandler struct {
	identity     Identity
	appointments SessionAppointments
	tokens       TokenIssuer
	logger       *slog.Logger
	now          func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(id Identity, appts SessionAppointments, tokens TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity:     id,
		appointments: appts,
		tokens:       tokens,
		logger:       logger,
		now:          time.Now,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.validCredentials(w, req) {
		return
	}

	user, err := h.identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToUserResponse(user.ID, user.Email))
}

// Login handles POST /api/v1/auth/login. A successful login replaces the
// active session, releasing the previous user's appointments.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.validCredentials(w, req) {
		return
	}

	prev, _ := h.identity.Current()
	sess, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if prev != nil && prev.UserID != sess.UserID {
		h.appointments.Forget(prev)
	}
	h.appointments.Load(r.Context(), sess)

	token, err := h.tokens.Make(sess.UserID, sess.ID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoginResponse{
		User:      dto.ToUserResponse(sess.UserID, sess.Email),
		Token:     token,
		ExpiresAt: h.now().Add(h.tokens.TTL()).UTC(),
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	redirect := h.identity.Logout(r.Context())
	h.appointments.Forget(sess)

	writeJSON(w, http.StatusOK, dto.LogoutResponse{Redirect: redirect})
}

// Session handles GET /api/v1/auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please log in to continue")
		return
	}
	writeJSON(w, http.StatusOK, dto.SessionResponse{
		User:      dto.ToUserResponse(sess.UserID, sess.Email),
		CreatedAt: sess.CreatedAt,
	})
}

func (h *AuthHandler) validCredentials(w http.ResponseWriter, req dto.CredentialsRequest) bool {
	if err := middleware.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_EMAIL", "Por favor, introduce un email válido.")
		return false
	}
	if err := middleware.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_PASSWORD", "La contraseña debe tener al menos 6 caracteres.")
		return false
	}
	return true
}

// handleServiceError maps identity errors to HTTP responses.
func (h *AuthHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrLoading):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "SESSION_LOADING", "Session is still loading")
	case errors.Is(err, identity.ErrUserExists):
		writeError(w, http.StatusConflict, "USER_EXISTS", "Ya existe una cuenta con ese correo electrónico.")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "El correo electrónico o la contraseña son incorrectos.")
	case errors.Is(err, identity.ErrStorage):
		h.logger.ErrorContext(r.Context(), "storage error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Could not access stored accounts")
	default:
		h.logger.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
