package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

type Config struct {
	DefaultRole          string
	TokenTTL             time.Duration
	SessionTTL           time.Duration
	SessionAbsoluteTTL   time.Duration
	FailedLoginThreshold int
	LockoutDuration      time.Duration

	RegisterRateLimitIPThreshold         int
	RegisterRateLimitIdentifierThreshold int
	RegisterRateLimitWindow              time.Duration
}

type RegisterRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          string `json:"role"`
	TermsAccepted bool   `json:"terms_accepted"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type RegisterResponse struct {
	Token     string      `json:"token"`
	SessionID uuid.UUID   `json:"session_id"`
	ExpiresIn int64       `json:"expires_in"`
	User      UserProfile `json:"user"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
	DeviceOS   string `json:"device_os"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	SessionID uuid.UUID   `json:"session_id"`
	ExpiresIn int64       `json:"expires_in"`
	User      UserProfile `json:"user"`
}

// UserProfile is the only user shape the service hands to transports.
// It deliberately has no field for the credential hash, so no handler can
// serialize one by accident.
type UserProfile struct {
	UserID        uuid.UUID  `json:"user_id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	IsActive      bool       `json:"is_active"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toUserProfile(u domain.User) UserProfile {
	return UserProfile{
		UserID:        u.UserID,
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		IsActive:      u.IsActive,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	IPAddress       string `json:"-"`
	UserAgent       string `json:"-"`
}

type PasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type RefreshResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type SessionItem struct {
	SessionID      uuid.UUID  `json:"session_id"`
	DeviceName     string     `json:"device_name"`
	DeviceOS       string     `json:"device_os"`
	IPAddress      string     `json:"ip_address"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	IsCurrent      bool       `json:"is_current"`
}

type LoginHistoryQuery struct {
	Page   int
	Limit  int
	Days   int
	Status string
}

type LoginHistoryItem struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	IPAddress     string    `json:"ip_address"`
	DeviceName    string    `json:"device_name,omitempty"`
	DeviceOS      string    `json:"device_os,omitempty"`
}

type SecurityEventQuery struct {
	Page  int
	Limit int
	Days  int
	Kind  string
}

type SecurityEventItem struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func toSessionItem(s domain.Session, currentSessionID uuid.UUID) SessionItem {
	return SessionItem{
		SessionID:      s.SessionID,
		DeviceName:     s.DeviceName,
		DeviceOS:       s.DeviceOS,
		IPAddress:      s.IPAddress,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		RevokedAt:      s.RevokedAt,
		IsCurrent:      s.SessionID == currentSessionID,
	}
}
