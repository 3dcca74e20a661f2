package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clearharbor/portal/services/auth-service/internal/application"
	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

func registerUser(t *testing.T, f *fixture, username, email, password string) application.RegisterResponse {
	t.Helper()
	res, err := f.service.Register(context.Background(), application.RegisterRequest{
		Username:      username,
		Email:         email,
		Password:      password,
		TermsAccepted: true,
	}, "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return res
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	registerRes := registerUser(t, f, "client_one", "client@example.com", "SecurePass123!")
	if registerRes.User.UserID == uuid.Nil {
		t.Fatalf("register returned empty user id")
	}
	if registerRes.User.Role != "CLIENT" {
		t.Fatalf("expected default role CLIENT, got %s", registerRes.User.Role)
	}
	if registerRes.Token == "" || registerRes.SessionID == uuid.Nil {
		t.Fatalf("expected registration to open a session and mint a token")
	}

	loginRes, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "client@example.com",
		Password:   "SecurePass123!",
		IPAddress:  "127.0.0.1",
		UserAgent:  "unit-test",
		DeviceName: "test",
		DeviceOS:   "linux",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("login token should not be empty")
	}

	refreshRes, err := f.service.Refresh(ctx, loginRes.Token)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshRes.Token == "" {
		t.Fatalf("refresh token should not be empty")
	}

	if err := f.service.LogoutCurrentSession(ctx, loginRes.Token); err != nil {
		t.Fatalf("logout current session failed: %v", err)
	}
	if _, err := f.service.Refresh(ctx, loginRes.Token); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("expected revoked session after logout, got %v", err)
	}
}

func TestLoginByUsername(t *testing.T) {
	t.Parallel()

	f := newFixture()
	registerUser(t, f, "handle_login", "handle@example.com", "SecurePass123!")

	loginRes, err := f.service.Login(context.Background(), application.LoginRequest{
		Identifier: "Handle_Login",
		Password:   "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("login by username failed: %v", err)
	}
	if loginRes.User.Email != "handle@example.com" {
		t.Fatalf("unexpected user in login response: %s", loginRes.User.Email)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	t.Parallel()

	f := newFixture()

	_, err := f.service.Register(context.Background(), application.RegisterRequest{
		Username:      "weak_pw_user",
		Email:         "weak@example.com",
		Password:      "alllowercase1",
		TermsAccepted: true,
	}, "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	var weak *domain.WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("expected weak password error, got %v", err)
	}
	if weak.Checks.HasUpper || weak.Checks.HasSymbol {
		t.Fatalf("expected upper/symbol checks to fail: %+v", weak.Checks)
	}
	if !weak.Checks.MinLength || !weak.Checks.HasLower || !weak.Checks.HasDigit {
		t.Fatalf("expected satisfied checks to be reported: %+v", weak.Checks)
	}
}

func TestLoginCountsDownRemainingAttemptsThenLocks(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	registerUser(t, f, "lockout_user", "lockout@example.com", "SecurePass123!")

	for want := 4; want >= 1; want-- {
		_, err := f.service.Login(ctx, application.LoginRequest{
			Identifier: "lockout@example.com",
			Password:   "WrongPass123!",
		})
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
		if !strings.Contains(err.Error(), fmt.Sprintf("%d attempts remaining", want)) {
			t.Fatalf("expected %d attempts remaining in %q", want, err.Error())
		}
	}

	if _, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "lockout@example.com",
		Password:   "WrongPass123!",
	}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lock on fifth failure, got %v", err)
	}

	// The correct password does not bypass an active lock.
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "lockout@example.com",
		Password:   "SecurePass123!",
	}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected locked account to reject correct password, got %v", err)
	}

	if !f.securityEvents.has(domain.EventAccountLocked) {
		t.Fatalf("expected ACCOUNT_LOCKED event, got %v", f.securityEvents.kinds())
	}
}

func TestRowLockHoldsWithoutCacheState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	res := registerUser(t, f, "row_locked", "rowlocked@example.com", "SecurePass123!")

	until := time.Now().UTC().Add(10 * time.Minute)
	f.users.mutate(res.User.UserID, func(u *domain.User) {
		u.FailedLoginAttempts = 5
		u.LockedUntil = &until
	})

	// No cache entry exists, so the persisted lock must carry the decision.
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "rowlocked@example.com",
		Password:   "SecurePass123!",
	}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected row-based lock to hold, got %v", err)
	}
	if !f.securityEvents.has(domain.EventLoginBlocked) {
		t.Fatalf("expected LOGIN_BLOCKED event, got %v", f.securityEvents.kinds())
	}
}

func TestUnknownIdentifierFailuresShareWordingAndLock(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	registerUser(t, f, "real_user", "real@example.com", "SecurePass123!")

	_, unknownErr := f.service.Login(ctx, application.LoginRequest{
		Identifier: "ghost@example.com",
		Password:   "WrongPass123!",
	})
	_, wrongPassErr := f.service.Login(ctx, application.LoginRequest{
		Identifier: "real@example.com",
		Password:   "WrongPass123!",
	})
	if unknownErr == nil || wrongPassErr == nil {
		t.Fatalf("expected both logins to fail")
	}
	if unknownErr.Error() != wrongPassErr.Error() {
		t.Fatalf("failure wording must not reveal account existence: %q vs %q", unknownErr.Error(), wrongPassErr.Error())
	}

	// Probe sweeps against identifiers with no account still lock out.
	for i := 0; i < 4; i++ {
		_, err := f.service.Login(ctx, application.LoginRequest{
			Identifier: "ghost@example.com",
			Password:   "WrongPass123!",
		})
		if i < 3 && !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+2, err)
		}
		if i == 3 && !errors.Is(err, domain.ErrAccountLocked) {
			t.Fatalf("expected lock after threshold, got %v", err)
		}
	}
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "ghost@example.com",
		Password:   "WrongPass123!",
	}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected standing lock for unknown identifier, got %v", err)
	}
}

func TestLoginChecksPasswordBeforeActiveFlag(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	res := registerUser(t, f, "inactive_user", "inactive@example.com", "SecurePass123!")

	f.users.mutate(res.User.UserID, func(u *domain.User) { u.IsActive = false })

	// A wrong password on a disabled account must look like any other
	// credential failure, or the flag becomes probeable.
	_, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "inactive@example.com",
		Password:   "WrongPass123!",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}

	_, err = f.service.Login(ctx, application.LoginRequest{
		Identifier: "inactive@example.com",
		Password:   "SecurePass123!",
	})
	if !errors.Is(err, domain.ErrAccountDisabled) {
		t.Fatalf("expected disabled account error for correct password, got %v", err)
	}
	if !f.securityEvents.has(domain.EventLoginBlocked) {
		t.Fatalf("expected LOGIN_BLOCKED event for the disabled account, got %v", f.securityEvents.kinds())
	}
}

func TestSuccessfulLoginClearsExpiredLock(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	res := registerUser(t, f, "expired_lock", "expired@example.com", "SecurePass123!")

	past := time.Now().UTC().Add(-time.Minute)
	f.users.mutate(res.User.UserID, func(u *domain.User) {
		u.FailedLoginAttempts = 5
		u.LockedUntil = &past
	})

	loginRes, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "expired@example.com",
		Password:   "SecurePass123!",
		IPAddress:  "10.0.0.9",
	})
	if err != nil {
		t.Fatalf("login after lock expiry failed: %v", err)
	}
	if loginRes.User.LastLoginAt == nil {
		t.Fatalf("expected last login timestamp in response")
	}

	user, err := f.users.GetByID(ctx, res.User.UserID)
	if err != nil {
		t.Fatalf("load user failed: %v", err)
	}
	if user.FailedLoginAttempts != 0 || user.LockedUntil != nil {
		t.Fatalf("expected counters cleared, got attempts=%d lockedUntil=%v", user.FailedLoginAttempts, user.LockedUntil)
	}
	if user.LastLoginAt == nil || user.LastLoginIP != "10.0.0.9" {
		t.Fatalf("expected last login metadata, got at=%v ip=%q", user.LastLoginAt, user.LastLoginIP)
	}
	if !f.securityEvents.has(domain.EventAccountUnlocked) {
		t.Fatalf("expected ACCOUNT_UNLOCKED event, got %v", f.securityEvents.kinds())
	}
}

func TestAuditSinkFailureDoesNotBlockLogin(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	registerUser(t, f, "audit_down", "auditdown@example.com", "SecurePass123!")

	f.securityEvents.mu.Lock()
	f.securityEvents.insertErr = errors.New("event store unavailable")
	f.securityEvents.mu.Unlock()

	loginRes, err := f.service.Login(ctx, application.LoginRequest{
		Identifier: "auditdown@example.com",
		Password:   "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("login should survive audit sink failure, got %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("expected token despite audit sink failure")
	}
}

func TestLoginResponseNeverCarriesCredentialHash(t *testing.T) {
	t.Parallel()

	f := newFixture()
	registerUser(t, f, "no_hash", "nohash@example.com", "SecurePass123!")

	loginRes, err := f.service.Login(context.Background(), application.LoginRequest{
		Identifier: "nohash@example.com",
		Password:   "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	raw, err := json.Marshal(loginRes)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	body := string(raw)
	if strings.Contains(body, "hash:") || strings.Contains(body, "password") {
		t.Fatalf("login response leaks credential material: %s", body)
	}
}

func TestRegisterEmitsRegistrationAuditAndOutboxEvent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	registerUser(t, f, "evented", "evented@example.com", "SecurePass123!")

	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	if len(f.users.audits) != 1 || f.users.audits[0].Kind != domain.EventRegistration {
		t.Fatalf("expected REGISTRATION audit in creation transaction, got %+v", f.users.audits)
	}
	if len(f.users.events) != 1 || f.users.events[0].EventType != "user.registered" {
		t.Fatalf("expected user.registered outbox event, got %+v", f.users.events)
	}
	var payload map[string]any
	if err := json.Unmarshal(f.users.events[0].Payload, &payload); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if _, ok := payload["registered_at"]; !ok {
		t.Fatalf("expected registered_at in payload")
	}
}

func TestRegisterRejectsDuplicateIdentifiers(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	registerUser(t, f, "dup_user", "dup@example.com", "SecurePass123!")

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Username:      "other_name",
		Email:         "dup@example.com",
		Password:      "SecurePass123!",
		TermsAccepted: true,
	}, ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Username:      "dup_user",
		Email:         "other@example.com",
		Password:      "SecurePass123!",
		TermsAccepted: true,
	}, ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}

	f.securityEvents.mu.Lock()
	defer f.securityEvents.mu.Unlock()
	var warned bool
	for _, event := range f.securityEvents.events {
		if event.Kind == domain.EventRegistration && event.Severity == domain.SeverityWarning {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected duplicate-attempt warning event")
	}
}

func TestRegisterReplaysStoredResponseForSameKey(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	req := application.RegisterRequest{
		Username:      "replayer",
		Email:         "replayer@example.com",
		Password:      "SecurePass123!",
		TermsAccepted: true,
	}

	first, err := f.service.Register(ctx, req, "reg-key-1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	replayed, err := f.service.Register(ctx, req, "reg-key-1")
	if err != nil {
		t.Fatalf("replay with same key failed: %v", err)
	}
	if replayed.SessionID != first.SessionID || replayed.Token != first.Token {
		t.Fatalf("expected the stored response on replay, got session %v token %q", replayed.SessionID, replayed.Token)
	}
	if replayed.User.UserID != first.User.UserID {
		t.Fatalf("replay returned a different user: %v vs %v", replayed.User.UserID, first.User.UserID)
	}

	// Reusing the key for a different payload is a conflict, not a replay.
	other := req
	other.Username = "someone_else"
	other.Email = "someoneelse@example.com"
	if _, err := f.service.Register(ctx, other, "reg-key-1"); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict for a mismatched payload, got %v", err)
	}
	if _, err := f.users.GetByIdentifier(ctx, "someoneelse@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("conflicting replay must not create an account, got %v", err)
	}
}

func TestRegisterRateLimitedByIP(t *testing.T) {
	t.Parallel()

	cfg := defaultTestConfig()
	cfg.RegisterRateLimitIPThreshold = 2
	cfg.RegisterRateLimitIdentifierThreshold = 100
	cfg.RegisterRateLimitWindow = 5 * time.Minute

	f := newFixtureWithConfig(cfg)
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Username:      "rate_a",
		Email:         "rate-a@example.com",
		Password:      "SecurePass123!",
		TermsAccepted: true,
		IPAddress:     "127.0.0.1",
	}, ""); err != nil {
		t.Fatalf("first register should pass: %v", err)
	}
	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Username:      "rate_b",
		Email:         "rate-b@example.com",
		Password:      "SecurePass123!",
		TermsAccepted: true,
		IPAddress:     "127.0.0.1",
	}, ""); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}
