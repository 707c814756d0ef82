package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UsersRegistered            uint64
	LoginSuccesses             uint64
	LoginFailures              uint64
	Logouts                    uint64
	AppointmentsCreated        uint64
	AppointmentsDeleted        uint64
	RemindersArmed             uint64
	RemindersFired             uint64
	RemindersCancelled         uint64
	ElaborationDurationCount   uint64
	ElaborationDurationTotalNs int64
	ElaborationFailures        uint64
	WebhookDeliveries          map[string]uint64
	StorageErrors              map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	usersRegistered            uint64
	loginSuccesses             uint64
	loginFailures              uint64
	logouts                    uint64
	appointmentsCreated        uint64
	appointmentsDeleted        uint64
	remindersArmed             uint64
	remindersFired             uint64
	remindersCancelled         uint64
	elaborationDurationCount   uint64
	elaborationDurationTotalNs int64
	elaborationFailures        uint64

	mu                sync.Mutex
	webhookDeliveries map[string]uint64
	storageErrors     map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		webhookDeliveries: make(map[string]uint64),
		storageErrors:     make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	webhookDeliveries := copyCounts(m.webhookDeliveries)
	storageErrors := copyCounts(m.storageErrors)
	m.mu.Unlock()

	return Snapshot{
		UsersRegistered:            atomic.LoadUint64(&m.usersRegistered),
		LoginSuccesses:             atomic.LoadUint64(&m.loginSuccesses),
		LoginFailures:              atomic.LoadUint64(&m.loginFailures),
		Logouts:                    atomic.LoadUint64(&m.logouts),
		AppointmentsCreated:        atomic.LoadUint64(&m.appointmentsCreated),
		AppointmentsDeleted:        atomic.LoadUint64(&m.appointmentsDeleted),
		RemindersArmed:             atomic.LoadUint64(&m.remindersArmed),
		RemindersFired:             atomic.LoadUint64(&m.remindersFired),
		RemindersCancelled:         atomic.LoadUint64(&m.remindersCancelled),
		ElaborationDurationCount:   atomic.LoadUint64(&m.elaborationDurationCount),
		ElaborationDurationTotalNs: atomic.LoadInt64(&m.elaborationDurationTotalNs),
		ElaborationFailures:        atomic.LoadUint64(&m.elaborationFailures),
		WebhookDeliveries:          webhookDeliveries,
		StorageErrors:              storageErrors,
	}
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncLogin increments the login counter for result.
func (m *InMemoryRecorder) IncLogin(result string) {
	if result == LoginSuccess {
		atomic.AddUint64(&m.loginSuccesses, 1)
		return
	}
	atomic.AddUint64(&m.loginFailures, 1)
}

// IncLogout increments the logout counter.
func (m *InMemoryRecorder) IncLogout() {
	atomic.AddUint64(&m.logouts, 1)
}

// IncAppointmentCreated increments appointment created counter.
func (m *InMemoryRecorder) IncAppointmentCreated() {
	atomic.AddUint64(&m.appointmentsCreated, 1)
}

// IncAppointmentDeleted increments appointment deleted counter.
func (m *InMemoryRecorder) IncAppointmentDeleted() {
	atomic.AddUint64(&m.appointmentsDeleted, 1)
}

// IncReminderArmed increments armed reminder counter.
func (m *InMemoryRecorder) IncReminderArmed() {
	atomic.AddUint64(&m.remindersArmed, 1)
}

// IncReminderFired increments fired reminder counter.
func (m *InMemoryRecorder) IncReminderFired() {
	atomic.AddUint64(&m.remindersFired, 1)
}

// IncReminderCancelled increments cancelled reminder counter.
func (m *InMemoryRecorder) IncReminderCancelled() {
	atomic.AddUint64(&m.remindersCancelled, 1)
}

// ObserveElaborationDuration records elaboration call duration.
func (m *InMemoryRecorder) ObserveElaborationDuration(duration time.Duration) {
	atomic.AddUint64(&m.elaborationDurationCount, 1)
	atomic.AddInt64(&m.elaborationDurationTotalNs, duration.Nanoseconds())
}

// IncElaborationFailed increments failed elaboration counter.
func (m *InMemoryRecorder) IncElaborationFailed() {
	atomic.AddUint64(&m.elaborationFailures, 1)
}

// IncWebhookDelivery increments the webhook delivery counter for result.
func (m *InMemoryRecorder) IncWebhookDelivery(result string) {
	m.mu.Lock()
	m.webhookDeliveries[result]++
	m.mu.Unlock()
}

// IncStorageError increments the storage error counter for op.
func (m *InMemoryRecorder) IncStorageError(op string) {
	m.mu.Lock()
	m.storageErrors[op]++
	m.mu.Unlock()
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, n := range src {
		dst[k] = n
	}
	return dst
}
