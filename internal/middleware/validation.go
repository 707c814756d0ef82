package middleware

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Credential limits.
const (
	MaxEmailLength    = 254
	MinPasswordLength = 6
	MaxPasswordLength = 128

	// MinElaborationLength is the shortest reason worth elaborating.
	MinElaborationLength = 5
)

// Validation errors.
var (
	ErrEmailRequired  = errors.New("email is required")
	ErrEmailTooLong   = errors.New("email exceeds maximum length")
	ErrEmailInvalid   = errors.New("email is not a valid address")
	ErrPasswordShort  = errors.New("password is too short")
	ErrPasswordLong   = errors.New("password exceeds maximum length")
	ErrReasonTooShort = errors.New("reason is too short to elaborate")
)

// ValidateEmail accepts a single bare address such as "a@x.com".
// Display names and angle brackets are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrEmailInvalid
	}
	if at := strings.LastIndexByte(email, '@'); at <= 0 || at == len(email)-1 {
		return ErrEmailInvalid
	}
	return nil
}

// ValidatePassword checks length in characters.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return ErrPasswordShort
	}
	if n > MaxPasswordLength {
		return ErrPasswordLong
	}
	return nil
}

// ValidateElaborationReason requires MinElaborationLength characters after
// trimming.
func ValidateElaborationReason(reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinElaborationLength {
		return ErrReasonTooShort
	}
	return nil
}
