package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

// ListSessions returns current and historical sessions for the authenticated user.
func (s *Service) ListSessions(ctx context.Context, jwtToken string) ([]SessionItem, error) {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	sessions, err := s.sessions.ListByUser(ctx, claims.UserID, 100, 0)
	if err != nil {
		return nil, err
	}

	result := make([]SessionItem, 0, len(sessions))
	for _, it := range sessions {
		result = append(result, toSessionItem(it, claims.SessionID))
	}
	return result, nil
}

// RevokeSessionByID revokes a specific session owned by the authenticated user.
// Ownership checks prevent cross-user session manipulation.
func (s *Service) RevokeSessionByID(ctx context.Context, jwtToken string, sessionID uuid.UUID) error {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return domain.ErrUnauthorized
	}
	target, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.ErrNotFound
	}
	if target.UserID != claims.UserID {
		return domain.ErrUnauthorized
	}

	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, sessionID, now); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, sessionID, now.Add(s.cfg.TokenTTL))
	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:     domain.EventSessionRevoked,
		Severity: domain.SeverityInfo,
		UserID:   &claims.UserID,
		Detail:   "session " + sessionID.String(),
	})
	return nil
}

// ListLoginHistory returns login attempts with pagination and optional time/status filters.
func (s *Service) ListLoginHistory(ctx context.Context, jwtToken string, q LoginHistoryQuery) ([]LoginHistoryItem, error) {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	var since *time.Time
	if q.Days > 0 {
		t := s.nowFn().Add(-time.Duration(q.Days) * 24 * time.Hour)
		since = &t
	}

	attempts, err := s.loginAttempts.ListByUser(ctx, claims.UserID, q.Limit, offset, since, strings.ToUpper(strings.TrimSpace(q.Status)))
	if err != nil {
		return nil, err
	}

	result := make([]LoginHistoryItem, 0, len(attempts))
	for _, attempt := range attempts {
		result = append(result, LoginHistoryItem{
			ID:            attempt.ID,
			Timestamp:     attempt.AttemptAt,
			Status:        attempt.Status,
			FailureReason: attempt.FailureReason,
			IPAddress:     attempt.IPAddress,
			DeviceName:    attempt.DeviceName,
			DeviceOS:      attempt.DeviceOS,
		})
	}
	return result, nil
}

// ListSecurityEvents returns the caller's audit trail with pagination and
// optional time/kind filtering.
func (s *Service) ListSecurityEvents(ctx context.Context, jwtToken string, q SecurityEventQuery) ([]SecurityEventItem, error) {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	var since *time.Time
	if q.Days > 0 {
		t := s.nowFn().Add(-time.Duration(q.Days) * 24 * time.Hour)
		since = &t
	}

	events, err := s.securityEvents.ListByUser(ctx, claims.UserID, q.Limit, offset, since, strings.ToUpper(strings.TrimSpace(q.Kind)))
	if err != nil {
		return nil, err
	}

	result := make([]SecurityEventItem, 0, len(events))
	for _, event := range events {
		result = append(result, SecurityEventItem{
			ID:         event.ID,
			Kind:       string(event.Kind),
			Severity:   string(event.Severity),
			IPAddress:  event.IPAddress,
			Detail:     event.Detail,
			OccurredAt: event.OccurredAt,
		})
	}
	return result, nil
}
