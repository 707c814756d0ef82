// Package model defines domain entities for the application.
package model

import "time"

// User is a registered account. Password holds an Argon2id PHC string,
// never the plaintext secret.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the single active login for a profile.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession builds a session for the given user.
func NewSession(id string, u *User, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    u.ID,
		Email:     u.Email,
		CreatedAt: now.UTC(),
	}
}

// PublicUser strips the credential from a user for API responses.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Public returns the user without its password hash.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}
