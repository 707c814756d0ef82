package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Layouts used by persisted appointment fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
	SlotLabel  = "3:04 PM"
)

// Slot bounds (inclusive) and step.
const (
	FirstSlot    = 8 * time.Hour
	LastSlot     = 16*time.Hour + 30*time.Minute
	SlotInterval = 30 * time.Minute
)

// MinReasonLength is the minimum reason length accepted by the booking form.
const MinReasonLength = 10

// Validation errors.
var (
	ErrDateRequired    = errors.New("date is required")
	ErrInvalidDate     = errors.New("date must be formatted as YYYY-MM-DD")
	ErrDateInPast      = errors.New("date must not be before today")
	ErrTimeRequired    = errors.New("time is required")
	ErrInvalidTimeSlot = errors.New("time must be one of the available slots")
	ErrReasonTooShort  = errors.New("reason must be at least 10 characters")
)

// Appointment is a booked slot owned by one user.
type Appointment struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

// Draft is an appointment that has not been assigned an id yet.
type Draft struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

// Slot is a bookable time of day.
type Slot struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// TimeSlots returns the bookable slots in ascending order.
func TimeSlots() []Slot {
	slots := make([]Slot, 0, int((LastSlot-FirstSlot)/SlotInterval)+1)
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := FirstSlot; d <= LastSlot; d += SlotInterval {
		t := base.Add(d)
		slots = append(slots, Slot{
			Value: t.Format(TimeLayout),
			Label: t.Format(SlotLabel),
		})
	}
	return slots
}

// IsValidSlot reports whether value is one of the bookable slots.
func IsValidSlot(value string) bool {
	t, err := time.Parse(TimeLayout, value)
	if err != nil || t.Format(TimeLayout) != value {
		return false
	}
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	return offset >= FirstSlot && offset <= LastSlot && offset%SlotInterval == 0
}

// ParseTimestamp combines a date and a time of day in loc.
func ParseTimestamp(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	ts, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse appointment timestamp %q %q: %w", date, clock, err)
	}
	return ts, nil
}

// Timestamp returns the instant the appointment starts in loc.
func (a *Appointment) Timestamp(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(a.Date, a.Time, loc)
}

// Draft returns the appointment without its id.
func (a *Appointment) Draft() Draft {
	return Draft{Date: a.Date, Time: a.Time, Reason: a.Reason}
}

// Normalize trims surrounding whitespace from every field.
func (d Draft) Normalize() Draft {
	return Draft{
		Date:   strings.TrimSpace(d.Date),
		Time:   strings.TrimSpace(d.Time),
		Reason: strings.TrimSpace(d.Reason),
	}
}

// Validate applies the booking form rules. Dates before the calendar day
// of now in loc are rejected.
func (d Draft) Validate(now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	if d.Date == "" {
		return ErrDateRequired
	}
	day, err := time.ParseInLocation(DateLayout, d.Date, loc)
	if err != nil {
		return ErrInvalidDate
	}
	y, m, dd := now.In(loc).Date()
	if day.Before(time.Date(y, m, dd, 0, 0, 0, 0, loc)) {
		return ErrDateInPast
	}
	if d.Time == "" {
		return ErrTimeRequired
	}
	if !IsValidSlot(d.Time) {
		return ErrInvalidTimeSlot
	}
	if utf8.RuneCountInString(d.Reason) < MinReasonLength {
		return ErrReasonTooShort
	}
	return nil
}

// SortAscending orders appointments by start time, earliest first.
// Appointments whose timestamp cannot be parsed sort last.
func SortAscending(list []Appointment, loc *time.Location) {
	sort.SliceStable(list, func(i, j int) bool {
		return lessByTimestamp(&list[i], &list[j], loc)
	})
}

// Partition splits list into upcoming (timestamp >= now, ascending) and
// past (timestamp < now, descending). The input is not modified.
func Partition(list []Appointment, now time.Time, loc *time.Location) (upcoming, past []Appointment) {
	upcoming = make([]Appointment, 0, len(list))
	past = make([]Appointment, 0, len(list))
	for _, a := range list {
		ts, err := a.Timestamp(loc)
		if err == nil && ts.Before(now) {
			past = append(past, a)
			continue
		}
		upcoming = append(upcoming, a)
	}

	SortAscending(upcoming, loc)
	sort.SliceStable(past, func(i, j int) bool {
		return lessByTimestamp(&past[j], &past[i], loc)
	})
	return upcoming, past
}

func lessByTimestamp(a, b *Appointment, loc *time.Location) bool {
	ta, errA := a.Timestamp(loc)
	tb, errB := b.Timestamp(loc)
	switch {
	case errA != nil && errB != nil:
		return false
	case errA != nil:
		return false
	case errB != nil:
		return true
	}
	return ta.Before(tb)
}
