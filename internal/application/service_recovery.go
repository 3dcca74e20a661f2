package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

// RequestPasswordReset creates a one-time reset token when the user exists.
// It intentionally returns success for unknown users to avoid account enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByIdentifier(ctx, normalized)
	if err != nil {
		// Do not leak whether user exists.
		return nil
	}

	rawToken := randomHex(32)
	tokenHash := hashToken(rawToken)
	now := s.nowFn()
	if err := s.recovery.CreatePasswordResetToken(ctx, user.UserID, tokenHash, now, now.Add(time.Hour)); err != nil {
		return err
	}
	return nil
}

// ResetPassword consumes a reset token and updates the user credential hash.
// A successful reset also clears any standing lockout so the user can sign in
// immediately with the new password.
func (s *Service) ResetPassword(ctx context.Context, req PasswordResetRequest) error {
	if strings.TrimSpace(req.Token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	userID, err := s.recovery.ConsumePasswordResetToken(ctx, hashToken(req.Token), s.nowFn())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	now := s.nowFn()
	if err := s.credentials.UpdatePassword(ctx, userID, passwordHash, now); err != nil {
		return err
	}

	if user, getErr := s.users.GetByID(ctx, userID); getErr == nil {
		_ = s.users.UpdateLoginState(ctx, userID, domain.LoginState{
			FailedLoginAttempts: 0,
			LockedUntil:         nil,
			LastLoginAt:         user.LastLoginAt,
			LastLoginIP:         user.LastLoginIP,
		})
		_ = s.lockouts.Clear(ctx, "login:"+user.Email)
		_ = s.lockouts.Clear(ctx, "login:"+user.Username)
	}

	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:     domain.EventPasswordChanged,
		Severity: domain.SeverityInfo,
		UserID:   &userID,
		Detail:   "reset via recovery token",
	})
	return nil
}

// RequestEmailVerification issues a one-time verification token for the authenticated user.
func (s *Service) RequestEmailVerification(ctx context.Context, jwtToken string) error {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return domain.ErrUnauthorized
	}

	now := s.nowFn()
	token := randomHex(32)
	tokenHash := hashToken(token)
	if err := s.recovery.CreateEmailVerificationToken(ctx, claims.UserID, tokenHash, now, now.Add(24*time.Hour)); err != nil {
		return err
	}
	return nil
}

// VerifyEmail consumes a verification token and marks email as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	userID, err := s.recovery.ConsumeEmailVerificationToken(ctx, hashToken(token), s.nowFn())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}
	return s.credentials.SetEmailVerified(ctx, userID, true, s.nowFn())
}
