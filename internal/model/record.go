package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// RecordVersion is the envelope version written by this build.
const RecordVersion = 1

// LegacyVersion marks values written without an envelope.
const LegacyVersion = 0

// ErrDecode is matched by every DecodeError via errors.Is.
var ErrDecode = errors.New("decode record")

// DecodeError reports a persisted value that could not be turned into a
// valid in-memory record.
type DecodeError struct {
	Key     string
	Version int
	Reason  string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s (v%d): %s", e.Key, e.Version, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

type envelope struct {
	Version *int            `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// EncodeRecord wraps v in the current versioned envelope.
func EncodeRecord(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	version := RecordVersion
	out, err := json.Marshal(envelope{Version: &version, Data: data})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(out), nil
}

// unwrap returns the payload and version of raw. Bare values without an
// envelope are treated as LegacyVersion.
func unwrap(key, raw string) (json.RawMessage, int, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return nil, LegacyVersion, &DecodeError{Key: key, Reason: "empty value"}
	}
	if !json.Valid(trimmed) {
		return nil, LegacyVersion, &DecodeError{Key: key, Reason: "malformed json"}
	}

	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Version != nil {
			if *env.Version != RecordVersion {
				return nil, *env.Version, &DecodeError{Key: key, Version: *env.Version, Reason: "unsupported version"}
			}
			if len(env.Data) == 0 {
				return nil, *env.Version, &DecodeError{Key: key, Version: *env.Version, Reason: "missing data"}
			}
			return env.Data, *env.Version, nil
		}
	}
	return trimmed, LegacyVersion, nil
}

// DecodeUsers parses a persisted user directory.
func DecodeUsers(key, raw string) ([]User, error) {
	data, version, err := unwrap(key, raw)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, &DecodeError{Key: key, Version: version, Reason: "not a user list", Err: err}
	}
	seen := make(map[string]bool, len(users))
	for i, u := range users {
		if u.ID == "" || u.Email == "" {
			return nil, &DecodeError{Key: key, Version: version, Reason: fmt.Sprintf("user %d missing id or email", i)}
		}
		if seen[u.Email] {
			return nil, &DecodeError{Key: key, Version: version, Reason: fmt.Sprintf("duplicate email at user %d", i)}
		}
		seen[u.Email] = true
	}
	return users, nil
}

// DecodeSession parses a persisted session. Legacy values hold the whole
// user object, whose id becomes the session's user id.
func DecodeSession(key, raw string) (*Session, error) {
	data, version, err := unwrap(key, raw)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &DecodeError{Key: key, Version: version, Reason: "not a session", Err: err}
	}
	if version == LegacyVersion && sess.UserID == "" {
		sess.UserID = sess.ID
	}
	if sess.UserID == "" {
		return nil, &DecodeError{Key: key, Version: version, Reason: "session missing user id"}
	}
	return &sess, nil
}

// DecodeAppointments parses a persisted appointment list.
func DecodeAppointments(key, raw string) ([]Appointment, error) {
	data, version, err := unwrap(key, raw)
	if err != nil {
		return nil, err
	}
	var list []Appointment
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &DecodeError{Key: key, Version: version, Reason: "not an appointment list", Err: err}
	}
	for i, a := range list {
		if a.ID == "" {
			return nil, &DecodeError{Key: key, Version: version, Reason: fmt.Sprintf("appointment %d missing id", i)}
		}
		if _, err := a.Timestamp(nil); err != nil {
			return nil, &DecodeError{Key: key, Version: version, Reason: fmt.Sprintf("appointment %d has invalid date or time", i), Err: err}
		}
	}
	return list, nil
}
