package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
	"github.com/clearharbor/portal/services/auth-service/internal/ports"
)

// GetProfile returns the caller's account in its safe projection.
func (s *Service) GetProfile(ctx context.Context, jwtToken string) (UserProfile, error) {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return UserProfile{}, domain.ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return UserProfile{}, err
	}
	return toUserProfile(user), nil
}

// ChangePassword rotates the caller's credential after re-verifying the
// current password. All other sessions are revoked so a stolen token does not
// survive the rotation.
func (s *Service) ChangePassword(ctx context.Context, jwtToken string, req ChangePasswordRequest) error {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return domain.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, req.CurrentPassword); err != nil {
		s.recordEvent(ctx, domain.SecurityEvent{
			Kind:      domain.EventSuspiciousActivity,
			Severity:  domain.SeverityWarning,
			UserID:    &user.UserID,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Detail:    "password change with wrong current password",
		})
		return domain.ErrCurrentPasswordInvalid
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	if s.hasher.Compare(user.PasswordHash, req.NewPassword) == nil {
		return fmt.Errorf("%w: new password must differ from current password", domain.ErrInvalidInput)
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.nowFn()
	if err := s.credentials.UpdatePassword(ctx, user.UserID, passwordHash, now); err != nil {
		return err
	}

	if err := s.sessions.RevokeAllByUserExcept(ctx, user.UserID, claims.SessionID, now); err == nil {
		if sessions, listErr := s.sessions.ListByUser(ctx, user.UserID, 500, 0); listErr == nil {
			for _, session := range sessions {
				if session.SessionID == claims.SessionID {
					continue
				}
				_ = s.revocations.MarkRevoked(ctx, session.SessionID, now.Add(s.cfg.TokenTTL))
			}
		}
	}

	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:      domain.EventPasswordChanged,
		Severity:  domain.SeverityInfo,
		UserID:    &user.UserID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})

	payload, _ := json.Marshal(map[string]any{
		"user_id":    user.UserID.String(),
		"changed_at": now,
	})
	_ = s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypePasswordChanged,
		PartitionKey: user.UserID.String(),
		Payload:      payload,
		OccurredAt:   now,
	})
	return nil
}

// DeactivateAccount performs user-requested deactivation: all sessions are
// revoked, the row is disabled, and a deactivation event is queued.
func (s *Service) DeactivateAccount(ctx context.Context, jwtToken string) error {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return domain.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}

	now := s.nowFn()
	if err := s.sessions.RevokeAllByUser(ctx, claims.UserID, now); err != nil {
		return err
	}
	if sessions, listErr := s.sessions.ListByUser(ctx, claims.UserID, 500, 0); listErr == nil {
		for _, session := range sessions {
			_ = s.revocations.MarkRevoked(ctx, session.SessionID, now.Add(s.cfg.TokenTTL))
		}
	}
	if err := s.users.Deactivate(ctx, claims.UserID, now); err != nil {
		return err
	}

	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:     domain.EventAccountDeactivated,
		Severity: domain.SeverityInfo,
		UserID:   &claims.UserID,
	})

	payload, _ := json.Marshal(map[string]any{
		"user_id":        claims.UserID.String(),
		"email":          user.Email,
		"deactivated_at": now,
	})
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeUserDeactivated,
		PartitionKey: claims.UserID.String(),
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventTypeUserDeactivated, err)
	}

	return nil
}
