// Package notify delivers user-facing notifications such as reminders
// and operation results.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind classifies a notification.
type Kind string

const (
	KindReminder          Kind = "reminder"
	KindLoginSucceeded    Kind = "login_succeeded"
	KindLoginFailed       Kind = "login_failed"
	KindLogout            Kind = "logout"
	KindAppointmentBooked Kind = "appointment_booked"
	KindSaveFailed        Kind = "save_failed"
	KindDeleteSucceeded   Kind = "delete_succeeded"
	KindDeleteFailed      Kind = "delete_failed"
	KindElaborated        Kind = "elaborated"
	KindElaborationFailed Kind = "elaboration_failed"
)

// Notification is a single toast shown to the user.
type Notification struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	UserID        string    `json:"user_id,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Destructive   bool      `json:"destructive,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// stamp fills the id and timestamp when missing.
func stamp(n Notification) Notification {
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n
}

// Nop discards every notification.
type Nop struct{}

// Notify is a no-op.
func (Nop) Notify(ctx context.Context, n Notification) {}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs n.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	n = stamp(n)
	level := slog.LevelInfo
	if n.Destructive {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "notification",
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("title", n.Title),
		slog.String("user_id", n.UserID),
		slog.String("appointment_id", n.AppointmentID),
	)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify forwards n to every notifier with the same id and timestamp.
func (m Multi) Notify(ctx context.Context, n Notification) {
	n = stamp(n)
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}

// DefaultOutboxSize bounds the pending queue of an Outbox.
const DefaultOutboxSize = 100

// Outbox queues notifications until the client drains them. When full,
// the oldest entry is dropped.
type Outbox struct {
	mu      sync.Mutex
	items   []Notification
	max     int
	dropped uint64
}

// NewOutbox creates an Outbox holding at most max entries.
func NewOutbox(max int) *Outbox {
	if max <= 0 {
		max = DefaultOutboxSize
	}
	return &Outbox{max: max}
}

// Notify enqueues n.
func (o *Outbox) Notify(ctx context.Context, n Notification) {
	n = stamp(n)
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) >= o.max {
		o.items = o.items[1:]
		o.dropped++
	}
	o.items = append(o.items, n)
}

// Drain returns and clears the pending notifications, oldest first.
func (o *Outbox) Drain() []Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.items
	o.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// DrainFor returns and clears the pending notifications visible to
// userID, oldest first: those addressed to userID and those addressed to
// nobody. Notifications for other users stay queued. An empty userID
// drains only unaddressed notifications.
func (o *Outbox) DrainFor(userID string) []Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := []Notification{}
	kept := o.items[:0]
	for _, n := range o.items {
		if n.UserID == "" || n.UserID == userID {
			out = append(out, n)
			continue
		}
		kept = append(kept, n)
	}
	clear(o.items[len(kept):])
	o.items = kept
	return out
}

// Pending returns the number of queued notifications.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Dropped returns how many notifications were evicted by overflow.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
