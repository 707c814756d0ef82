// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Login results passed to IncLogin.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// Webhook delivery results passed to IncWebhookDelivery.
const (
	DeliverySuccess = "success"
	DeliveryFailure = "failure"
	DeliveryDropped = "dropped"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Identity metrics
	IncUserRegistered()
	IncLogin(result string)
	IncLogout()

	// Appointment metrics
	IncAppointmentCreated()
	IncAppointmentDeleted()

	// Reminder metrics
	IncReminderArmed()
	IncReminderFired()
	IncReminderCancelled()

	// Elaboration metrics
	ObserveElaborationDuration(duration time.Duration)
	IncElaborationFailed()

	// Webhook metrics
	IncWebhookDelivery(result string)

	// Storage metrics
	IncStorageError(op string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
