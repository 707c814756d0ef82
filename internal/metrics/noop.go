package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncUserRegistered is a no-op.
func (n *NoopRecorder) IncUserRegistered() {}

// IncLogin is a no-op.
func (n *NoopRecorder) IncLogin(result string) {}

// IncLogout is a no-op.
func (n *NoopRecorder) IncLogout() {}

// IncAppointmentCreated is a no-op.
func (n *NoopRecorder) IncAppointmentCreated() {}

// IncAppointmentDeleted is a no-op.
func (n *NoopRecorder) IncAppointmentDeleted() {}

// IncReminderArmed is a no-op.
func (n *NoopRecorder) IncReminderArmed() {}

// IncReminderFired is a no-op.
func (n *NoopRecorder) IncReminderFired() {}

// IncReminderCancelled is a no-op.
func (n *NoopRecorder) IncReminderCancelled() {}

// ObserveElaborationDuration is a no-op.
func (n *NoopRecorder) ObserveElaborationDuration(duration time.Duration) {}

// IncElaborationFailed is a no-op.
func (n *NoopRecorder) IncElaborationFailed() {}

// IncWebhookDelivery is a no-op.
func (n *NoopRecorder) IncWebhookDelivery(result string) {}

// IncStorageError is a no-op.
func (n *NoopRecorder) IncStorageError(op string) {}
