package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical portal account aggregate.
// Lockout bookkeeping lives on the row so that a single atomic update can
// adjust counters, lock expiry, and last-login metadata together.
type User struct {
	UserID              uuid.UUID
	Username            string
	Email               string
	PasswordHash        string
	Role                string
	EmailVerified       bool
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string
	PasswordChangedAt   *time.Time
	DeletedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LoginState is the slice of the user row the login flow is allowed to touch.
// Persisting it as a unit keeps counters and timestamps consistent under
// concurrent attempts.
type LoginState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string
}

// Session models a login session issued by the portal.
// We persist this separately to support per-device revocation and session history.
type Session struct {
	SessionID      uuid.UUID
	UserID         uuid.UUID
	DeviceName     string
	DeviceOS       string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
}

// LoginAttempt records authentication outcomes for audit and lockout controls.
type LoginAttempt struct {
	ID            int64
	UserID        *uuid.UUID
	AttemptAt     time.Time
	IPAddress     string
	Status        string
	FailureReason string
	DeviceName    string
	DeviceOS      string
	UserAgent     string
}
