package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citafacil/citafacil/internal/appointment"
	"github.com/citafacil/citafacil/internal/auth"
	"github.com/citafacil/citafacil/internal/handler/dto"
	"github.com/citafacil/citafacil/internal/model"
)

// Appointments is the per-user appointment collection.
type Appointments interface {
	List(ctx context.Context, sess *model.Session) []model.Appointment
	Views(ctx context.Context, sess *model.Session) (upcoming, past []model.Appointment)
	Add(ctx context.Context, sess *model.Session, draft model.Draft) (*model.Appointment, error)
	Delete(ctx context.Context, sess *model.Session, id string) error
	Location() *time.Location
}

// AppointmentHandler handles booking, history and cancellation.
type AppointmentHandler struct {
	store  Appointments
	logger *slog.Logger
	now    func() time.Time
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(store Appointments, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{store: store, logger: logger, now: time.Now}
}

// List handles GET /api/v1/appointments. view selects all (ascending),
// upcoming (ascending) or past (most recent first); without it both
// partitions are returned.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	loc := h.store.Location()

	switch view := r.URL.Query().Get("view"); view {
	case "":
		upcoming, past := h.store.Views(r.Context(), sess)
		writeJSON(w, http.StatusOK, dto.AppointmentViewsResponse{
			Upcoming: dto.ToAppointmentResponses(upcoming, loc),
			Past:     dto.ToAppointmentResponses(past, loc),
		})
	case "all":
		writeJSON(w, http.StatusOK, dto.AppointmentListResponse{
			Appointments: dto.ToAppointmentResponses(h.store.List(r.Context(), sess), loc),
		})
	case "upcoming", "past":
		upcoming, past := h.store.Views(r.Context(), sess)
		list := upcoming
		if view == "past" {
			list = past
		}
		writeJSON(w, http.StatusOK, dto.AppointmentListResponse{
			Appointments: dto.ToAppointmentResponses(list, loc),
		})
	default:
		writeError(w, http.StatusBadRequest, "INVALID_VIEW", "view must be all, upcoming or past")
	}
}

// Create handles POST /api/v1/appointments.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	draft := req.Draft()
	if err := draft.Validate(h.now(), h.store.Location()); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	sess := auth.SessionFromContext(r.Context())
	appt, err := h.store.Add(r.Context(), sess, draft)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if appt == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Please log in to continue")
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToAppointmentResponse(*appt, h.store.Location()))
}

// Delete handles DELETE /api/v1/appointments/{id}. Unknown ids succeed.
func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Appointment ID is required")
		return
	}

	if err := h.store.Delete(r.Context(), auth.SessionFromContext(r.Context()), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleServiceError maps validation and store errors to HTTP responses.
func (h *AppointmentHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrDateRequired):
		writeError(w, http.StatusUnprocessableEntity, "DATE_REQUIRED", "A date is required.")
	case errors.Is(err, model.ErrInvalidDate):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_DATE", "Date must be formatted as YYYY-MM-DD.")
	case errors.Is(err, model.ErrDateInPast):
		writeError(w, http.StatusUnprocessableEntity, "DATE_IN_PAST", "Date must not be in the past.")
	case errors.Is(err, model.ErrTimeRequired):
		writeError(w, http.StatusUnprocessableEntity, "TIME_REQUIRED", "A time is required.")
	case errors.Is(err, model.ErrInvalidTimeSlot):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_TIME_SLOT", "Time must be one of the available slots.")
	case errors.Is(err, model.ErrReasonTooShort):
		writeError(w, http.StatusUnprocessableEntity, "REASON_TOO_SHORT", "Reason must be at least 10 characters.")
	case errors.Is(err, appointment.ErrInvalidAppointment):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_APPOINTMENT", "Invalid appointment")
	case errors.Is(err, appointment.ErrStorage):
		h.logger.ErrorContext(r.Context(), "storage error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Appointments could not be saved")
	default:
		h.logger.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
