package middleware

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email string
		want  error
	}{
		{"a@x.com", nil},
		{"maria.lopez@clinica.example", nil},
		{"", ErrEmailRequired},
		{"not-an-email", ErrEmailInvalid},
		{"@x.com", ErrEmailInvalid},
		{"Maria <maria@x.com>", ErrEmailInvalid},
		{"a@x.com, b@x.com", ErrEmailInvalid},
		{strings.Repeat("a", 250) + "@x.com", ErrEmailTooLong},
	}

	for _, tt := range tests {
		if err := ValidateEmail(tt.email); !errors.Is(err, tt.want) {
			t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		password string
		want     error
	}{
		{"secret1", nil},
		{"ñandú1", nil},
		{"12345", ErrPasswordShort},
		{"", ErrPasswordShort},
		{strings.Repeat("x", MaxPasswordLength+1), ErrPasswordLong},
	}

	for _, tt := range tests {
		if err := ValidatePassword(tt.password); !errors.Is(err, tt.want) {
			t.Errorf("ValidatePassword(%q) = %v, want %v", tt.password, err, tt.want)
		}
	}
}

func TestValidateElaborationReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason string
		want   error
	}{
		{"dolor", nil},
		{"  gripe fuerte  ", nil},
		{"tos", ErrReasonTooShort},
		{"   dolo   ", ErrReasonTooShort},
	}

	for _, tt := range tests {
		if err := ValidateElaborationReason(tt.reason); !errors.Is(err, tt.want) {
			t.Errorf("ValidateElaborationReason(%q) = %v, want %v", tt.reason, err, tt.want)
		}
	}
}
