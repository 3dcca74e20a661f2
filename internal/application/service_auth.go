package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
	"github.com/clearharbor/portal/services/auth-service/internal/ports"
)

// Register creates a portal account and writes the audit record plus the
// registration outbox event in the same transaction. This guarantees account
// state and integration signal cannot diverge.
func (s *Service) Register(ctx context.Context, req RegisterRequest, idempotencyKey string) (RegisterResponse, error) {
	username, err := normalizeUsername(req.Username)
	if err != nil {
		return RegisterResponse{}, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return RegisterResponse{}, err
	}
	if ip := strings.TrimSpace(req.IPAddress); ip != "" {
		if err := s.enforceRateLimit(
			ctx,
			"register:ip:"+ip,
			s.cfg.RegisterRateLimitIPThreshold,
			s.cfg.RegisterRateLimitWindow,
		); err != nil {
			return RegisterResponse{}, err
		}
	}
	if err := s.enforceRateLimit(
		ctx,
		"register:identifier:"+email,
		s.cfg.RegisterRateLimitIdentifierThreshold,
		s.cfg.RegisterRateLimitWindow,
	); err != nil {
		return RegisterResponse{}, err
	}
	if !req.TermsAccepted {
		return RegisterResponse{}, fmt.Errorf("%w: terms must be accepted", domain.ErrInvalidInput)
	}

	if err := domain.ValidatePassword(req.Password); err != nil {
		return RegisterResponse{}, err
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = s.cfg.DefaultRole
	}

	if idempotencyKey != "" {
		requestHash := hashRequest(req)
		if err := s.idempotency.Reserve(ctx, idempotencyKey, requestHash, s.nowFn().Add(7*24*time.Hour)); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return s.replayRegistration(ctx, idempotencyKey, requestHash)
			}
			return RegisterResponse{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"username":      username,
		"email":         email,
		"registered_at": now,
	})

	event := ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeUserRegistered,
		PartitionKey: email,
		Payload:      payload,
		OccurredAt:   now,
	}
	audit := domain.SecurityEvent{
		Kind:       domain.EventRegistration,
		Severity:   domain.SeverityInfo,
		Identifier: email,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		OccurredAt: now,
	}

	user, err := s.users.CreateWithEventsTx(ctx, ports.CreateUserTxParams{
		Username:        username,
		Email:           email,
		PasswordHash:    passwordHash,
		Role:            role,
		EmailVerified:   false,
		IdempotencyKey:  idempotencyKey,
		RegisteredAtUTC: now,
	}, audit, event)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// The caller gets a field-agnostic conflict; the colliding field
			// stays in operator-facing detail only.
			s.recordEvent(ctx, domain.SecurityEvent{
				Kind:       domain.EventRegistration,
				Severity:   domain.SeverityWarning,
				Identifier: email,
				IPAddress:  req.IPAddress,
				UserAgent:  req.UserAgent,
				Detail:     "duplicate identifier",
			})
		}
		return RegisterResponse{}, err
	}

	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:         user.UserID,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
	})
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		UserID:    user.UserID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		IsActive:  user.IsActive,
		SessionID: session.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("sign token: %w", err)
	}

	resp := RegisterResponse{
		Token:     token,
		SessionID: session.SessionID,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
		User:      toUserProfile(user),
	}
	if idempotencyKey != "" {
		responseBody, _ := json.Marshal(resp)
		_ = s.idempotency.Complete(ctx, idempotencyKey, 201, responseBody, s.nowFn())
	}

	return resp, nil
}

// replayRegistration resolves an idempotency-key collision. A key that
// already completed for the same request payload returns the stored response
// unchanged; any other reuse is a conflict.
func (s *Service) replayRegistration(ctx context.Context, key, requestHash string) (RegisterResponse, error) {
	record, err := s.idempotency.Get(ctx, key)
	if err != nil || record == nil {
		return RegisterResponse{}, fmt.Errorf("%w: idempotency key already reserved", domain.ErrIdempotencyConflict)
	}
	if record.RequestHash != requestHash {
		return RegisterResponse{}, fmt.Errorf("%w: idempotency key reused with a different request", domain.ErrIdempotencyConflict)
	}
	if record.ResponseCode != 201 || len(record.ResponseBody) == 0 {
		// Reserved but never completed, most likely a request still in flight.
		return RegisterResponse{}, fmt.Errorf("%w: original request not yet completed", domain.ErrIdempotencyConflict)
	}
	var resp RegisterResponse
	if err := json.Unmarshal(record.ResponseBody, &resp); err != nil {
		return RegisterResponse{}, fmt.Errorf("%w: stored response unreadable", domain.ErrIdempotencyConflict)
	}
	return resp, nil
}

// invalidCredentialsError builds the shared failure message for unknown
// identifiers and wrong passwords. The wording must stay identical on both
// paths so responses never reveal whether an account exists.
func invalidCredentialsError(remaining int) error {
	return fmt.Errorf("%w: %d attempts remaining", domain.ErrInvalidCredentials, remaining)
}

// Login runs the credential check pipeline: lock check, account lookup,
// password verification, active check, then session issuance. The password is
// always verified before the active flag so a deactivated account cannot be
// probed with junk passwords.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	identifier, err := normalizeIdentifier(req.Identifier)
	if err != nil {
		return LoginResponse{}, err
	}

	now := s.nowFn()
	lockKey := "login:" + identifier
	cacheState, err := s.lockouts.Get(ctx, lockKey)
	if err == nil && cacheState.LockedUntil != nil && cacheState.LockedUntil.After(now) {
		s.recordEvent(ctx, domain.SecurityEvent{
			Kind:       domain.EventLoginBlocked,
			Severity:   domain.SeverityWarning,
			Identifier: identifier,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			Detail:     "lockout active",
		})
		slog.Default().WarnContext(ctx, "account lockout active",
			"service", "auth-service",
			"module", "application",
			"layer", "application",
			"operation", "login",
			"outcome", "blocked",
			"identifier", identifier,
			"locked_until", cacheState.LockedUntil,
		)
		return LoginResponse{}, domain.ErrAccountLocked
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		// Unknown identifiers still pay into the lockout counter so probe
		// sweeps lock just like real accounts do.
		s.recordFailure(ctx, nil, req, "USER_NOT_FOUND")
		updated, lockErr := s.lockouts.RecordFailure(ctx, lockKey, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
		if lockErr != nil {
			return LoginResponse{}, s.loginStoreFailure(ctx, identifier, req, lockErr)
		}
		s.recordEvent(ctx, domain.SecurityEvent{
			Kind:       domain.EventLoginFailed,
			Severity:   domain.SeverityWarning,
			Identifier: identifier,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			Detail:     "unknown identifier",
		})
		if updated.LockedUntil != nil && updated.LockedUntil.After(now) {
			return LoginResponse{}, domain.ErrAccountLocked
		}
		return LoginResponse{}, invalidCredentialsError(s.policy.RemainingAttempts(updated.FailedCount))
	}

	if s.policy.IsLocked(user.LockedUntil, now) {
		s.recordEvent(ctx, domain.SecurityEvent{
			Kind:       domain.EventLoginBlocked,
			Severity:   domain.SeverityWarning,
			UserID:     &user.UserID,
			Identifier: identifier,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			Detail:     "lockout active",
		})
		return LoginResponse{}, domain.ErrAccountLocked
	}
	// An expired lock counts as no lock; counters reset only on success.

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.recordFailure(ctx, &user.UserID, req, "INVALID_PASSWORD")
		state, locked := s.policy.RecordFailure(user.FailedLoginAttempts, now)
		if updErr := s.users.UpdateLoginState(ctx, user.UserID, domain.LoginState{
			FailedLoginAttempts: state.Attempts,
			LockedUntil:         state.LockedUntil,
			LastLoginAt:         user.LastLoginAt,
			LastLoginIP:         user.LastLoginIP,
		}); updErr != nil {
			return LoginResponse{}, s.loginStoreFailure(ctx, identifier, req, updErr)
		}
		if _, lockErr := s.lockouts.RecordFailure(ctx, lockKey, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration); lockErr != nil {
			slog.Default().WarnContext(ctx, "lockout cache update failed",
				"service", "auth-service",
				"module", "application",
				"layer", "application",
				"operation", "login",
				"outcome", "warning",
				"error", lockErr,
			)
		}
		if locked {
			s.recordEvent(ctx, domain.SecurityEvent{
				Kind:       domain.EventAccountLocked,
				Severity:   domain.SeverityCritical,
				UserID:     &user.UserID,
				Identifier: identifier,
				IPAddress:  req.IPAddress,
				UserAgent:  req.UserAgent,
				Detail:     fmt.Sprintf("locked after %d failed attempts", state.Attempts),
			})
			slog.Default().WarnContext(ctx, "account lockout triggered",
				"service", "auth-service",
				"module", "application",
				"layer", "application",
				"operation", "login",
				"outcome", "blocked",
				"identifier", identifier,
				"locked_until", state.LockedUntil,
			)
			return LoginResponse{}, domain.ErrAccountLocked
		}
		s.recordEvent(ctx, domain.SecurityEvent{
			Kind:       domain.EventLoginFailed,
			Severity:   domain.SeverityWarning,
			UserID:     &user.UserID,
			Identifier: identifier,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			Detail:     "invalid password",
		})
		return LoginResponse{}, invalidCredentialsError(s.policy.RemainingAttempts(state.Attempts))
	}

	if !user.IsActive || user.DeletedAt != nil {
		s.recordFailure(ctx, &user.UserID, req, "ACCOUNT_INACTIVE")
		s.recordEvent(ctx, domain.SecurityEvent{
			Kind:       domain.EventLoginBlocked,
			Severity:   domain.SeverityWarning,
			UserID:     &user.UserID,
			Identifier: identifier,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			Detail:     "account disabled",
		})
		return LoginResponse{}, domain.ErrAccountDisabled
	}

	wasLocked := user.LockedUntil != nil
	if err := s.users.UpdateLoginState(ctx, user.UserID, domain.LoginState{
		FailedLoginAttempts: 0,
		LockedUntil:         nil,
		LastLoginAt:         &now,
		LastLoginIP:         req.IPAddress,
	}); err != nil {
		return LoginResponse{}, s.loginStoreFailure(ctx, identifier, req, err)
	}
	_ = s.lockouts.Clear(ctx, lockKey)

	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:         user.UserID,
		DeviceName:     req.DeviceName,
		DeviceOS:       req.DeviceOS,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("create session: %w", err)
	}

	_ = s.loginAttempts.Insert(ctx, domain.LoginAttempt{
		UserID:     &user.UserID,
		AttemptAt:  now,
		IPAddress:  req.IPAddress,
		Status:     "SUCCESS",
		DeviceName: req.DeviceName,
		DeviceOS:   req.DeviceOS,
		UserAgent:  req.UserAgent,
	})
	if wasLocked {
		s.recordEvent(ctx, domain.SecurityEvent{
			Kind:       domain.EventAccountUnlocked,
			Severity:   domain.SeverityInfo,
			UserID:     &user.UserID,
			Identifier: identifier,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			Detail:     "lock expired, cleared on successful login",
		})
	}
	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:       domain.EventLoginSuccess,
		Severity:   domain.SeverityInfo,
		UserID:     &user.UserID,
		Identifier: identifier,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	})

	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		UserID:    user.UserID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		IsActive:  user.IsActive,
		SessionID: session.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	user.LastLoginAt = &now
	return LoginResponse{
		Token:     token,
		SessionID: session.SessionID,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
		User:      toUserProfile(user),
	}, nil
}

// loginStoreFailure converts an unavailable backing store into a generic
// error rather than leaking state or letting attempts bypass bookkeeping.
func (s *Service) loginStoreFailure(ctx context.Context, identifier string, req LoginRequest, cause error) error {
	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:       domain.EventError,
		Severity:   domain.SeverityCritical,
		Identifier: identifier,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		Detail:     "login state store unavailable",
	})
	slog.Default().ErrorContext(ctx, "failed to update login state",
		"service", "auth-service",
		"module", "application",
		"layer", "application",
		"operation", "login",
		"outcome", "failure",
		"error_code", "LOGIN_STATE_UNAVAILABLE",
		"error", cause,
	)
	return fmt.Errorf("update login state: %w", cause)
}

// Refresh rotates an access token for an active, non-revoked session.
// Session-based checks are repeated here to support immediate revocation semantics.
func (s *Service) Refresh(ctx context.Context, jwtToken string) (RefreshResponse, error) {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return RefreshResponse{}, domain.ErrUnauthorized
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return RefreshResponse{}, domain.ErrUnauthorized
	}
	if session.RevokedAt != nil {
		return RefreshResponse{}, domain.ErrSessionRevoked
	}
	if session.ExpiresAt.Before(s.nowFn()) {
		return RefreshResponse{}, domain.ErrSessionExpired
	}
	if session.CreatedAt.Add(s.cfg.SessionAbsoluteTTL).Before(s.nowFn()) {
		return RefreshResponse{}, domain.ErrSessionExpired
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, session.SessionID); revoked {
		return RefreshResponse{}, domain.ErrSessionRevoked
	}

	now := s.nowFn()
	_ = s.sessions.TouchActivity(ctx, session.SessionID, now)

	newToken, err := s.tokenSigner.Sign(ports.AuthClaims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Username:  claims.Username,
		Role:      claims.Role,
		IsActive:  claims.IsActive,
		SessionID: claims.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("sign refreshed token: %w", err)
	}

	return RefreshResponse{
		Token:     newToken,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

// LogoutCurrentSession revokes only the caller's active session.
func (s *Service) LogoutCurrentSession(ctx context.Context, jwtToken string) error {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return domain.ErrUnauthorized
	}
	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, claims.SessionID, now); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, claims.SessionID, now.Add(s.cfg.TokenTTL))
	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:     domain.EventLogout,
		Severity: domain.SeverityInfo,
		UserID:   &claims.UserID,
	})
	return nil
}

// LogoutAllSessions revokes all sessions for the authenticated user.
// This is used for account hardening after compromise or credential rotation.
func (s *Service) LogoutAllSessions(ctx context.Context, jwtToken string) error {
	claims, err := s.tokenSigner.ParseAndValidate(jwtToken)
	if err != nil {
		return domain.ErrUnauthorized
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
	s.recordEvent(ctx, domain.SecurityEvent{
		Kind:     domain.EventLogout,
		Severity: domain.SeverityInfo,
		UserID:   &claims.UserID,
		Detail:   "all sessions",
	})
	return nil
}

// ValidateToken verifies token integrity and current session validity.
// We re-check session state to support revocation and absolute session expiration.
func (s *Service) ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, claims.SessionID); revoked {
		return ports.AuthClaims{}, domain.ErrSessionRevoked
	}
	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if session.UserID != claims.UserID {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if session.RevokedAt != nil {
		return ports.AuthClaims{}, domain.ErrSessionRevoked
	}
	if session.ExpiresAt.Before(s.nowFn()) {
		return ports.AuthClaims{}, domain.ErrSessionExpired
	}
	if session.CreatedAt.Add(s.cfg.SessionAbsoluteTTL).Before(s.nowFn()) {
		return ports.AuthClaims{}, domain.ErrSessionExpired
	}
	return claims, nil
}

// PublicJWKs returns active public keys for downstream token verification.
func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.tokenSigner.PublicJWKs()
}
