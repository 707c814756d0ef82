package handler

import (
	"net/http"

	"github.com/citafacil/citafacil/internal/handler/dto"
	"github.com/citafacil/citafacil/internal/middleware"
	"github.com/citafacil/citafacil/internal/notify"
)

// Drainer hands out queued notifications exactly once.
type Drainer interface {
	DrainFor(userID string) []notify.Notification
}

// NotificationsHandler serves the notification outbox.
type NotificationsHandler struct {
	outbox Drainer
	tokens middleware.TokenParser
}

// NewNotificationsHandler creates a new NotificationsHandler. Bearer
// tokens are verified with tokens to decide whose notifications to hand out.
func NewNotificationsHandler(outbox Drainer, tokens middleware.TokenParser) *NotificationsHandler {
	return &NotificationsHandler{outbox: outbox, tokens: tokens}
}

// Drain handles GET /api/v1/notifications, returning and clearing the
// queued notifications visible to the caller, oldest first. Without a
// valid token only notifications addressed to nobody are returned; a
// token that outlived its session still identifies its user.
func (h *NotificationsHandler) Drain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.NotificationsResponse{Notifications: h.outbox.DrainFor(h.caller(r))})
}

func (h *NotificationsHandler) caller(r *http.Request) string {
	raw := middleware.BearerToken(r)
	if raw == "" || h.tokens == nil {
		return ""
	}
	claims, err := h.tokens.Parse(raw)
	if err != nil {
		return ""
	}
	return claims.UserID
}
