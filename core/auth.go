package core

import (
	"context"
	"errors"
	"time"
)

// AuthUser is an authenticated identity. It is never mutated once issued.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthCredentials is the transient login input. Never persisted or logged.
type AuthCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthSession binds a bearer token to a user until ExpiresAt.
// ExpiresAt is absolute and fixed when the session is created.
type AuthSession struct {
	Token     string    `json:"token"`
	User      AuthUser  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginResult carries either Session (Success) or Error, never both.
type LoginResult struct {
	Success bool         `json:"success"`
	Session *AuthSession `json:"session,omitempty"`
	Error   string       `json:"error,omitempty"`
	Err     error        `json:"-"`
}

// ValidationResult carries either User (IsValid) or Error, never both.
type ValidationResult struct {
	IsValid bool      `json:"isValid"`
	User    *AuthUser `json:"user,omitempty"`
	Error   string    `json:"error,omitempty"`
	Err     error     `json:"-"`
}

const (
	// SessionDuration is the default lifetime of an AuthSession.
	SessionDuration = 24 * time.Hour

	msgMissingCredentials = "Email and password are required"
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidToken       = "Invalid session token"
	msgSessionExpired     = "Session expired"
	msgStoreUnavailable   = "Session store unavailable"
)

var (
	// ErrMissingCredentials is returned when email or password is empty.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials is returned when email/password do not match a known identity.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for tokens that are not in the session table.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrSessionExpired is returned for a known token past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrStoreUnavailable wraps failures of the backing session storage.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// AuthProvider defines session authentication behaviour.
type AuthProvider interface {
	Login(ctx context.Context, creds AuthCredentials) LoginResult
	ValidateSession(ctx context.Context, token string) ValidationResult
	Logout(ctx context.Context, token string) (bool, error)
}

func loginFailure(msg string, err error) LoginResult {
	return LoginResult{Success: false, Error: msg, Err: err}
}

func invalidSession(msg string, err error) ValidationResult {
	return ValidationResult{IsValid: false, Error: msg, Err: err}
}
