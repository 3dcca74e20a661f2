package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

// recordFailure stores failed login context for audit and lockout policies.
func (s *Service) recordFailure(ctx context.Context, userID *uuid.UUID, req LoginRequest, reason string) {
	if err := s.loginAttempts.Insert(ctx, domain.LoginAttempt{
		UserID:        userID,
		AttemptAt:     s.nowFn(),
		IPAddress:     req.IPAddress,
		Status:        "FAILED",
		FailureReason: reason,
		DeviceName:    req.DeviceName,
		DeviceOS:      req.DeviceOS,
		UserAgent:     req.UserAgent,
	}); err != nil {
		slog.Default().WarnContext(ctx, "failed to persist login attempt",
			"service", "auth-service",
			"module", "application",
			"layer", "application",
			"operation", "record_login_failure",
			"outcome", "failure",
			"reason", reason,
			"error", err,
		)
	}
}

// recordEvent writes a security event, logging and swallowing sink failures.
// Audit must never turn a successful authentication into an error.
func (s *Service) recordEvent(ctx context.Context, event domain.SecurityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.nowFn()
	}
	if err := s.securityEvents.Insert(ctx, event); err != nil {
		slog.Default().WarnContext(ctx, "failed to persist security event",
			"service", "auth-service",
			"module", "application",
			"layer", "application",
			"operation", "record_security_event",
			"outcome", "failure",
			"kind", string(event.Kind),
			"error", err,
		)
	}
}

// normalizeEmail canonicalizes and validates email format before persistence/comparison.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// normalizeUsername canonicalizes and validates the login handle.
func normalizeUsername(username string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(username))
	if trimmed == "" {
		return "", fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if !usernamePattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: username must be 3-32 characters of letters, digits, or underscore", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// normalizeIdentifier canonicalizes a login identifier, which may be either
// an email address or a username.
func normalizeIdentifier(identifier string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(identifier))
	if trimmed == "" {
		return "", fmt.Errorf("%w: identifier is required", domain.ErrInvalidInput)
	}
	if strings.Contains(trimmed, "@") {
		return normalizeEmail(trimmed)
	}
	return normalizeUsername(trimmed)
}

// hashRequest computes deterministic request fingerprint for idempotency conflict detection.
func hashRequest(req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// hashToken stores one-way token fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a cryptographically random hex token.
func randomHex(bytesLen int) string {
	raw := make([]byte, bytesLen)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}

func (s *Service) enforceRateLimit(ctx context.Context, key string, threshold int, window time.Duration) error {
	if s.lockouts == nil || threshold <= 0 || window <= 0 {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return nil
	}

	state, err := s.lockouts.Get(ctx, key)
	if err == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
		return domain.ErrRateLimited
	}

	now := s.nowFn()
	updated, err := s.lockouts.RecordFailure(ctx, key, now, threshold, window)
	if err != nil {
		slog.Default().WarnContext(ctx, "rate-limit state unavailable",
			"service", "auth-service",
			"module", "application",
			"layer", "application",
			"operation", "rate_limit",
			"outcome", "warning",
			"key", key,
			"error", err,
		)
		return nil
	}
	if updated.LockedUntil != nil && updated.LockedUntil.After(now) {
		return domain.ErrRateLimited
	}
	return nil
}
