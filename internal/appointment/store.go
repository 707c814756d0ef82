// Package appointment keeps each user's appointments, persists them and
// arms their reminders.
package appointment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citafacil/citafacil/internal/metrics"
	"github.com/citafacil/citafacil/internal/model"
	"github.com/citafacil/citafacil/internal/notify"
	"github.com/citafacil/citafacil/internal/reminder"
	"github.com/citafacil/citafacil/internal/storage"
)

// Appointment errors.
var (
	ErrInvalidAppointment = errors.New("invalid appointment")
	ErrStorage            = errors.New("appointment storage failure")
)

// Config configures a Store.
type Config struct {
	Storage   storage.Store
	Keys      storage.Keys
	Scheduler *reminder.Scheduler
	Notifier  notify.Notifier
	Metrics   metrics.Recorder
	Logger    *slog.Logger
	Location  *time.Location
	Now       func() time.Time
}

// Store holds the in-memory collection of every user that has been
// loaded. All operations take the caller's session explicitly; a nil
// session makes them no-ops.
type Store struct {
	storage   storage.Store
	keys      storage.Keys
	scheduler *reminder.Scheduler
	notifier  notify.Notifier
	metrics   metrics.Recorder
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time

	mu    sync.Mutex
	lists map[string][]model.Appointment
}

// New creates a Store.
func New(cfg Config) *Store {
	if cfg.Keys.Namespace == "" {
		cfg.Keys = storage.NewKeys("")
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
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = reminder.NewScheduler(reminder.Config{
			Notifier: cfg.Notifier,
			Metrics:  cfg.Metrics,
			Logger:   cfg.Logger,
		})
	}
	return &Store{
		storage:   cfg.Storage,
		keys:      cfg.Keys,
		scheduler: cfg.Scheduler,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "appointment"),
		loc:       cfg.Location,
		now:       cfg.Now,
		lists:     make(map[string][]model.Appointment),
	}
}

// Location returns the zone appointment times are interpreted in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Load reads the user's appointments from storage, replaces the
// in-memory collection and re-arms every reminder. Unreadable data is
// logged and treated as an empty collection.
func (s *Store) Load(ctx context.Context, sess *model.Session) []model.Appointment {
	if sess == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.loadLocked(ctx, sess.UserID))
}

// List returns the user's appointments in ascending order, loading them
// on first use.
func (s *Store) List(ctx context.Context, sess *model.Session) []model.Appointment {
	if sess == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.listLocked(ctx, sess.UserID))
}

// Views partitions the user's appointments at the current time.
func (s *Store) Views(ctx context.Context, sess *model.Session) (upcoming, past []model.Appointment) {
	if sess == nil {
		return nil, nil
	}
	return model.Partition(s.List(ctx, sess), s.now(), s.loc)
}

// Upcoming returns appointments at or after now, earliest first.
func (s *Store) Upcoming(ctx context.Context, sess *model.Session) []model.Appointment {
	upcoming, _ := s.Views(ctx, sess)
	return upcoming
}

// Past returns appointments before now, most recent first.
func (s *Store) Past(ctx context.Context, sess *model.Session) []model.Appointment {
	_, past := s.Views(ctx, sess)
	return past
}

// Add assigns an id to draft, inserts it in order, persists the whole
// collection and arms its reminder. When persisting fails the record
// stays in memory and the returned error wraps ErrStorage.
func (s *Store) Add(ctx context.Context, sess *model.Session, draft model.Draft) (*model.Appointment, error) {
	if sess == nil {
		return nil, nil
	}

	start, err := model.ParseTimestamp(draft.Date, draft.Time, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAppointment, err)
	}

	appt := model.Appointment{
		ID:     uuid.NewString(),
		Date:   draft.Date,
		Time:   draft.Time,
		Reason: draft.Reason,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(clone(s.listLocked(ctx, sess.UserID)), appt)
	model.SortAscending(list, s.loc)
	s.lists[sess.UserID] = list

	persistErr := s.persistLocked(ctx, sess.UserID, list)

	s.scheduler.Schedule(sess.UserID, appt, start)
	s.metrics.IncAppointmentCreated()
	s.logger.InfoContext(ctx, "appointment created",
		slog.String("appointment_id", appt.ID),
		slog.String("user_id", sess.UserID),
	)

	if persistErr != nil {
		s.notifier.Notify(ctx, notify.Notification{
			Kind:          notify.KindSaveFailed,
			Title:         "Error",
			Message:       "Your appointment could not be saved on this device.",
			UserID:        sess.UserID,
			AppointmentID: appt.ID,
			Destructive:   true,
		})
		return &appt, persistErr
	}

	s.notifier.Notify(ctx, notify.Notification{
		Kind:          notify.KindAppointmentBooked,
		Title:         "✅ Appointment Booked!",
		Message:       fmt.Sprintf("Your appointment is set for %s at %s.", start.Format("January 2, 2006"), start.Format(model.SlotLabel)),
		UserID:        sess.UserID,
		AppointmentID: appt.ID,
	})
	return &appt, nil
}

// Delete removes the appointment with id and cancels its reminder. An
// unknown id is a no-op. When persisting fails the removal stays in
// memory and the returned error wraps ErrStorage.
func (s *Store) Delete(ctx context.Context, sess *model.Session, id string) error {
	if sess == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.listLocked(ctx, sess.UserID)
	idx := -1
	for i := range current {
		if current[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	list := make([]model.Appointment, 0, len(current)-1)
	list = append(list, current[:idx]...)
	list = append(list, current[idx+1:]...)
	s.lists[sess.UserID] = list

	s.scheduler.Cancel(id)
	s.metrics.IncAppointmentDeleted()

	if err := s.persistLocked(ctx, sess.UserID, list); err != nil {
		s.notifier.Notify(ctx, notify.Notification{
			Kind:          notify.KindDeleteFailed,
			Title:         "Error",
			Message:       "Could not delete the appointment. Please try again.",
			UserID:        sess.UserID,
			AppointmentID: id,
			Destructive:   true,
		})
		return err
	}

	s.notifier.Notify(ctx, notify.Notification{
		Kind:          notify.KindDeleteSucceeded,
		Title:         "Appointment cancelled",
		Message:       "Your appointment has been removed.",
		UserID:        sess.UserID,
		AppointmentID: id,
	})
	s.logger.InfoContext(ctx, "appointment deleted",
		slog.String("appointment_id", id),
		slog.String("user_id", sess.UserID),
	)
	return nil
}

// Forget drops the user's in-memory collection and pending reminders.
// Persisted data is untouched.
func (s *Store) Forget(sess *model.Session) {
	if sess == nil {
		return
	}
	s.mu.Lock()
	delete(s.lists, sess.UserID)
	s.mu.Unlock()
	s.scheduler.CancelUser(sess.UserID)
}

func (s *Store) listLocked(ctx context.Context, userID string) []model.Appointment {
	if list, ok := s.lists[userID]; ok {
		return list
	}
	return s.loadLocked(ctx, userID)
}

func (s *Store) loadLocked(ctx context.Context, userID string) []model.Appointment {
	list := s.read(ctx, userID)
	model.SortAscending(list, s.loc)
	s.lists[userID] = list

	s.scheduler.CancelUser(userID)
	armed := 0
	for _, a := range list {
		start, err := a.Timestamp(s.loc)
		if err != nil {
			continue
		}
		if s.scheduler.Schedule(userID, a, start) {
			armed++
		}
	}
	s.logger.DebugContext(ctx, "appointments loaded",
		slog.String("user_id", userID),
		slog.Int("count", len(list)),
		slog.Int("reminders", armed),
	)
	return list
}

func (s *Store) read(ctx context.Context, userID string) []model.Appointment {
	key := s.keys.Appointments(userID)
	raw, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		s.storageError(ctx, "appointments_get", err)
		return []model.Appointment{}
	}
	if !ok {
		return []model.Appointment{}
	}
	list, err := model.DecodeAppointments(key, raw)
	if err != nil {
		s.storageError(ctx, "appointments_decode", err)
		return []model.Appointment{}
	}
	return list
}

func (s *Store) persistLocked(ctx context.Context, userID string, list []model.Appointment) error {
	raw, err := model.EncodeRecord(list)
	if err != nil {
		s.storageError(ctx, "appointments_encode", err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.storage.Set(ctx, s.keys.Appointments(userID), raw); err != nil {
		s.storageError(ctx, "appointments_set", err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *Store) storageError(ctx context.Context, op string, err error) {
	s.metrics.IncStorageError(op)
	s.logger.ErrorContext(ctx, "storage operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func clone(list []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, len(list))
	copy(out, list)
	return out
}
