package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/citafacil/citafacil/internal/auth"
	"github.com/citafacil/citafacil/internal/handler/dto"
	"github.com/citafacil/citafacil/internal/middleware"
	"github.com/citafacil/citafacil/internal/notify"
)

// Elaborator expands an appointment reason.
type Elaborator interface {
	Elaborate(ctx context.Context, reason string) (string, error)
}

// ElaborateHandler exposes the reason assistant.
type ElaborateHandler struct {
	gateway  Elaborator
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewElaborateHandler creates a new ElaborateHandler.
func NewElaborateHandler(gateway Elaborator, notifier notify.Notifier, logger *slog.Logger) *ElaborateHandler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &ElaborateHandler{gateway: gateway, notifier: notifier, logger: logger}
}

// Elaborate handles POST /api/v1/elaborate. The caller's reason is never
// modified server side; on failure the client keeps what it had.
func (h *ElaborateHandler) Elaborate(w http.ResponseWriter, r *http.Request) {
	var req dto.ElaborateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	if err := middleware.ValidateElaborationReason(req.Reason); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "REASON_TOO_SHORT", "Please provide a brief reason first (at least 5 characters).")
		return
	}

	text, err := h.gateway.Elaborate(r.Context(), req.Reason)
	if err != nil {
		h.logger.WarnContext(r.Context(), "elaboration unavailable",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		h.notifier.Notify(r.Context(), notify.Notification{
			Kind:        notify.KindElaborationFailed,
			Title:       "AI Error",
			Message:     "Could not connect to the AI assistant. Please try again later.",
			UserID:      userID,
			Destructive: true,
		})
		writeError(w, http.StatusBadGateway, "ELABORATION_FAILED", "Could not connect to the AI assistant. Please try again later.")
		return
	}

	h.notifier.Notify(r.Context(), notify.Notification{
		Kind:    notify.KindElaborated,
		Title:   "AI Assistant",
		Message: "Your reason has been elaborated.",
		UserID:  userID,
	})
	writeJSON(w, http.StatusOK, dto.ElaborateResponse{Elaboration: text})
}
