package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind labels a security-relevant account action.
type EventKind string

const (
	EventRegistration       EventKind = "REGISTRATION"
	EventLoginSuccess       EventKind = "LOGIN_SUCCESS"
	EventLoginFailed        EventKind = "LOGIN_FAILED"
	EventLoginBlocked       EventKind = "LOGIN_BLOCKED"
	EventLogout             EventKind = "LOGOUT"
	EventPasswordChanged    EventKind = "PASSWORD_CHANGED"
	EventAccountLocked      EventKind = "ACCOUNT_LOCKED"
	EventAccountUnlocked    EventKind = "ACCOUNT_UNLOCKED"
	EventAccountDeactivated EventKind = "ACCOUNT_DEACTIVATED"
	EventSessionRevoked     EventKind = "SESSION_REVOKED"
	EventSuspiciousActivity EventKind = "SUSPICIOUS_ACTIVITY"
	EventError              EventKind = "ERROR"
)

// Severity grades a security event for downstream alerting.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// SecurityEvent is the audit record persisted for every security-relevant
// action. UserID is nil for events that could not be tied to an account,
// such as failures against unknown identifiers.
type SecurityEvent struct {
	ID         int64
	UserID     *uuid.UUID
	Kind       EventKind
	Severity   Severity
	Identifier string
	IPAddress  string
	UserAgent  string
	Detail     string
	OccurredAt time.Time
}
