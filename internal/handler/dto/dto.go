// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/citafacil/citafacil/internal/model"
	"github.com/citafacil/citafacil/internal/notify"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is a user without credentials.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginResponse carries the signed-in user and the bearer token bound to
// the new session.
type LoginResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// SessionResponse describes the active session.
type SessionResponse struct {
	User      UserResponse `json:"user"`
	CreatedAt time.Time    `json:"created_at"`
}

// LogoutResponse tells the client where to navigate.
type LogoutResponse struct {
	Redirect string `json:"redirect"`
}

// CreateAppointmentRequest is the booking form.
type CreateAppointmentRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

// Draft converts the request into a normalized draft.
func (r CreateAppointmentRequest) Draft() model.Draft {
	return model.Draft{Date: r.Date, Time: r.Time, Reason: r.Reason}.Normalize()
}

// AppointmentResponse is one appointment with its resolved start time.
type AppointmentResponse struct {
	ID       string     `json:"id"`
	Date     string     `json:"date"`
	Time     string     `json:"time"`
	Label    string     `json:"label"`
	Reason   string     `json:"reason"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
}

// AppointmentListResponse is a single view.
type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

// AppointmentViewsResponse holds both history partitions.
type AppointmentViewsResponse struct {
	Upcoming []AppointmentResponse `json:"upcoming"`
	Past     []AppointmentResponse `json:"past"`
}

// SlotsResponse lists bookable times.
type SlotsResponse struct {
	Slots []model.Slot `json:"slots"`
}

// ElaborateRequest is the reason to expand.
type ElaborateRequest struct {
	Reason string `json:"reason"`
}

// ElaborateResponse is the expanded reason.
type ElaborateResponse struct {
	Elaboration string `json:"elaboration"`
}

// NotificationsResponse is a drained batch of notifications.
type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// ToUserResponse converts a session or user identity.
func ToUserResponse(id, email string) UserResponse {
	return UserResponse{ID: id, Email: email}
}

// ToAppointmentResponse converts an Appointment. StartsAt is omitted when
// the stored date or time cannot be resolved in loc.
func ToAppointmentResponse(a model.Appointment, loc *time.Location) AppointmentResponse {
	resp := AppointmentResponse{
		ID:     a.ID,
		Date:   a.Date,
		Time:   a.Time,
		Label:  a.Time,
		Reason: a.Reason,
	}
	if ts, err := a.Timestamp(loc); err == nil {
		resp.StartsAt = &ts
		resp.Label = ts.Format(model.SlotLabel)
	}
	return resp
}

// ToAppointmentResponses converts a list, never returning nil.
func ToAppointmentResponses(list []model.Appointment, loc *time.Location) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, ToAppointmentResponse(a, loc))
	}
	return out
}
