// Package reminder arms one-shot notifications ahead of appointments.
// Pending reminders are indexed by appointment id, so scheduling the same
// appointment again replaces its timer and cancelling it is exact.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/citafacil/citafacil/internal/metrics"
	"github.com/citafacil/citafacil/internal/model"
	"github.com/citafacil/citafacil/internal/notify"
)

// DefaultLead is how long before an appointment its reminder fires.
const DefaultLead = 15 * time.Minute

// ReminderTitle is the title of a fired reminder.
const ReminderTitle = "🗓️ Upcoming Appointment"

// Pending describes an armed reminder.
type Pending struct {
	AppointmentID string
	UserID        string
	At            time.Time
}

type entry struct {
	Pending
	timer Timer
	gen   uint64
}

// Scheduler owns the reminder timers of the process.
type Scheduler struct {
	clock    Clock
	lead     time.Duration
	notifier notify.Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	gen     uint64
	pending map[string]*entry
}

// Config configures a Scheduler. Zero values select defaults.
type Config struct {
	Clock    Clock
	Lead     time.Duration
	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		clock:    cfg.Clock,
		lead:     cfg.Lead,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "reminder"),
		pending:  make(map[string]*entry),
	}
}

// Lead returns the configured lead time.
func (s *Scheduler) Lead() time.Duration {
	return s.lead
}

// Schedule arms the reminder for appt, which starts at start. Any pending
// reminder for the same appointment is replaced. Nothing is armed when the
// reminder time is not after now; the result reports whether a timer was armed.
func (s *Scheduler) Schedule(userID string, appt model.Appointment, start time.Time) bool {
	at := start.Add(-s.lead)
	delay := at.Sub(s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(appt.ID)
	if delay <= 0 {
		return false
	}

	s.gen++
	gen := s.gen
	e := &entry{
		Pending: Pending{AppointmentID: appt.ID, UserID: userID, At: at},
		gen:     gen,
	}
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(appt, gen) })
	s.pending[appt.ID] = e

	s.metrics.IncReminderArmed()
	s.logger.Debug("reminder armed",
		slog.String("appointment_id", appt.ID),
		slog.String("user_id", userID),
		slog.Time("at", at),
	)
	return true
}

// Cancel stops the pending reminder of appointmentID, if any.
func (s *Scheduler) Cancel(appointmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(appointmentID)
}

// CancelUser stops every pending reminder owned by userID.
func (s *Scheduler) CancelUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.pending {
		if e.UserID == userID && s.stopLocked(id) {
			n++
		}
	}
	return n
}

// CancelAll stops every pending reminder.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.pending {
		if s.stopLocked(id) {
			n++
		}
	}
	return n
}

// Shutdown cancels all timers. It matches server.ShutdownFunc.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	n := s.CancelAll()
	s.logger.Info("reminders cancelled", slog.Int("count", n))
	return nil
}

// Pending returns the reminder armed for appointmentID.
func (s *Scheduler) Pending(appointmentID string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[appointmentID]
	if !ok {
		return Pending{}, false
	}
	return e.Pending, true
}

// Len returns the number of pending reminders.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) stopLocked(appointmentID string) bool {
	e, ok := s.pending[appointmentID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, appointmentID)
	s.metrics.IncReminderCancelled()
	return true
}

func (s *Scheduler) fire(appt model.Appointment, gen uint64) {
	s.mu.Lock()
	e, ok := s.pending[appt.ID]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, appt.ID)
	s.mu.Unlock()

	s.metrics.IncReminderFired()
	s.logger.Info("reminder fired", slog.String("appointment_id", appt.ID))
	s.notifier.Notify(context.Background(), notify.Notification{
		Kind:          notify.KindReminder,
		Title:         ReminderTitle,
		Message:       fmt.Sprintf("Your appointment is in %d minutes.", int(s.lead.Minutes())),
		UserID:        e.UserID,
		AppointmentID: appt.ID,
	})
}
