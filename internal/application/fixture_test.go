package application_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearharbor/portal/services/auth-service/internal/application"
	"github.com/clearharbor/portal/services/auth-service/internal/domain"
	"github.com/clearharbor/portal/services/auth-service/internal/ports"
)

type fixture struct {
	service        *application.Service
	users          *fakeUsers
	sessions       *fakeSessions
	loginAttempts  *fakeLoginAttempts
	securityEvents *fakeSecurityEvents
	outbox         *fakeOutbox
	lockouts       *fakeLockouts
	revocations    *fakeRevocations
	recovery       *fakeRecovery
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func defaultTestConfig() application.Config {
	return application.Config{
		DefaultRole:                          "CLIENT",
		TokenTTL:                             24 * time.Hour,
		SessionTTL:                           30 * 24 * time.Hour,
		SessionAbsoluteTTL:                   90 * 24 * time.Hour,
		FailedLoginThreshold:                 5,
		LockoutDuration:                      30 * time.Minute,
		RegisterRateLimitIPThreshold:         50,
		RegisterRateLimitIdentifierThreshold: 10,
		RegisterRateLimitWindow:              time.Minute,
	}
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	users := &fakeUsers{
		byEmail:    make(map[string]domain.User),
		byUsername: make(map[string]domain.User),
		byID:       make(map[uuid.UUID]domain.User),
	}
	sessions := &fakeSessions{byID: make(map[uuid.UUID]domain.Session)}
	loginAttempts := &fakeLoginAttempts{}
	securityEvents := &fakeSecurityEvents{}
	outbox := &fakeOutbox{}
	idem := &fakeIdempotency{records: map[string]ports.IdempotencyRecord{}}
	lockouts := &fakeLockouts{state: map[string]ports.LockoutState{}}
	revocations := &fakeRevocations{revoked: map[uuid.UUID]bool{}}
	recovery := &fakeRecovery{passwordTokens: map[string]uuid.UUID{}, emailTokens: map[string]uuid.UUID{}}
	credentials := &fakeCredentials{users: users}
	signer := &fakeSigner{tokens: map[string]ports.AuthClaims{}}

	svc := application.NewService(application.Dependencies{
		Config:         cfg,
		Users:          users,
		Sessions:       sessions,
		LoginAttempts:  loginAttempts,
		SecurityEvents: securityEvents,
		Outbox:         outbox,
		Idempotency:    idem,
		Recovery:       recovery,
		Credentials:    credentials,
		Lockouts:       lockouts,
		Revocations:    revocations,
		Hasher:         &fakeHasher{},
		TokenSigner:    signer,
	})

	return &fixture{
		service:        svc,
		users:          users,
		sessions:       sessions,
		loginAttempts:  loginAttempts,
		securityEvents: securityEvents,
		outbox:         outbox,
		lockouts:       lockouts,
		revocations:    revocations,
		recovery:       recovery,
	}
}

type fakeUsers struct {
	mu         sync.Mutex
	byEmail    map[string]domain.User
	byUsername map[string]domain.User
	byID       map[uuid.UUID]domain.User
	audits     []domain.SecurityEvent
	events     []ports.OutboxEvent
}

func (f *fakeUsers) CreateWithEventsTx(_ context.Context, params ports.CreateUserTxParams, audit domain.SecurityEvent, outboxEvent ports.OutboxEvent) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byEmail[params.Email]; exists {
		return domain.User{}, domain.ErrConflict
	}
	if _, exists := f.byUsername[params.Username]; exists {
		return domain.User{}, domain.ErrConflict
	}
	user := domain.User{
		UserID:        uuid.New(),
		Username:      params.Username,
		Email:         params.Email,
		PasswordHash:  params.PasswordHash,
		Role:          params.Role,
		EmailVerified: params.EmailVerified,
		IsActive:      true,
		CreatedAt:     params.RegisteredAtUTC,
		UpdatedAt:     params.RegisteredAtUTC,
	}
	f.store(user)
	f.audits = append(f.audits, audit)
	f.events = append(f.events, outboxEvent)
	return user, nil
}

func (f *fakeUsers) GetByIdentifier(_ context.Context, identifier string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.byEmail[identifier]; ok {
		return user, nil
	}
	if user, ok := f.byUsername[identifier]; ok {
		return user, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) UpdateLoginState(_ context.Context, userID uuid.UUID, state domain.LoginState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.FailedLoginAttempts = state.FailedLoginAttempts
	user.LockedUntil = state.LockedUntil
	user.LastLoginAt = state.LastLoginAt
	user.LastLoginIP = state.LastLoginIP
	f.store(user)
	return nil
}

func (f *fakeUsers) Deactivate(_ context.Context, userID uuid.UUID, deactivatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.IsActive = false
	user.DeletedAt = &deactivatedAt
	f.store(user)
	return nil
}

// store must be called with f.mu held.
func (f *fakeUsers) store(user domain.User) {
	f.byEmail[user.Email] = user
	f.byUsername[user.Username] = user
	f.byID[user.UserID] = user
}

// mutate applies fn to a stored user, for tests that need to arrange row
// state the service would normally reach over time.
func (f *fakeUsers) mutate(userID uuid.UUID, fn func(*domain.User)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.byID[userID]
	fn(&user)
	f.store(user)
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Session
}

func (f *fakeSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := domain.Session{
		SessionID:      uuid.New(),
		UserID:         params.UserID,
		DeviceName:     params.DeviceName,
		DeviceOS:       params.DeviceOS,
		IPAddress:      params.IPAddress,
		UserAgent:      params.UserAgent,
		CreatedAt:      params.LastActivityAt,
		LastActivityAt: params.LastActivityAt,
		ExpiresAt:      params.ExpiresAt,
	}
	f.byID[session.SessionID] = session
	return session, nil
}

func (f *fakeSessions) GetByID(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.byID[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, session := range f.byID {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (f *fakeSessions) TouchActivity(_ context.Context, sessionID uuid.UUID, touchedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	session.LastActivityAt = touchedAt
	f.byID[sessionID] = session
	return nil
}

func (f *fakeSessions) RevokeByID(_ context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	f.byID[sessionID] = session
	return nil
}

func (f *fakeSessions) RevokeAllByUser(_ context.Context, userID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.byID {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &revokedAt
			f.byID[id] = session
		}
	}
	return nil
}

func (f *fakeSessions) RevokeAllByUserExcept(_ context.Context, userID, keepSessionID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.byID {
		if session.UserID == userID && session.SessionID != keepSessionID && session.RevokedAt == nil {
			session.RevokedAt = &revokedAt
			f.byID[id] = session
		}
	}
	return nil
}

type fakeLoginAttempts struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func (f *fakeLoginAttempts) Insert(_ context.Context, attempt domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt.ID = int64(len(f.attempts) + 1)
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeLoginAttempts) ListByUser(_ context.Context, userID uuid.UUID, _, _ int, _ *time.Time, status string) ([]domain.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LoginAttempt
	for _, attempt := range f.attempts {
		if attempt.UserID == nil || *attempt.UserID != userID {
			continue
		}
		if status != "" && attempt.Status != status {
			continue
		}
		out = append(out, attempt)
	}
	return out, nil
}

type fakeSecurityEvents struct {
	mu        sync.Mutex
	events    []domain.SecurityEvent
	insertErr error
}

func (f *fakeSecurityEvents) Insert(_ context.Context, event domain.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	event.ID = int64(len(f.events) + 1)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSecurityEvents) ListByUser(_ context.Context, userID uuid.UUID, _, _ int, _ *time.Time, kind string) ([]domain.SecurityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecurityEvent
	for _, event := range f.events {
		if event.UserID == nil || *event.UserID != userID {
			continue
		}
		if kind != "" && string(event.Kind) != kind {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (f *fakeSecurityEvents) kinds() []domain.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventKind, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, event.Kind)
	}
	return out
}

func (f *fakeSecurityEvents) has(kind domain.EventKind) bool {
	for _, k := range f.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (f *fakeIdempotency) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[key]; ok {
		return domain.ErrConflict
	}
	f.records[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, Status: "PENDING", ExpiresAt: expiresAt}
	return nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := f.records[key]
	record.Status = "COMPLETED"
	record.ResponseCode = responseCode
	record.ResponseBody = responseBody
	record.UpdatedAt = at
	f.records[key] = record
	return nil
}

type fakeLockouts struct {
	mu    sync.Mutex
	state map[string]ports.LockoutState
}

func (f *fakeLockouts) Get(_ context.Context, key string) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeLockouts) RecordFailure(_ context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state[key]
	st.FailedCount++
	if st.FailedCount >= threshold {
		lockUntil := now.Add(lockoutWindow)
		st.LockedUntil = &lockUntil
	}
	f.state[key] = st
	return st, nil
}

func (f *fakeLockouts) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.state, key)
	return nil
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func (f *fakeRevocations) MarkRevoked(_ context.Context, sessionID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[sessionID] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[sessionID], nil
}

type fakeRecovery struct {
	mu             sync.Mutex
	passwordTokens map[string]uuid.UUID
	emailTokens    map[string]uuid.UUID
}

func (f *fakeRecovery) CreatePasswordResetToken(_ context.Context, userID uuid.UUID, tokenHash string, _, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwordTokens[tokenHash] = userID
	return nil
}

func (f *fakeRecovery) ConsumePasswordResetToken(_ context.Context, tokenHash string, _ time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.passwordTokens[tokenHash]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	delete(f.passwordTokens, tokenHash)
	return userID, nil
}

func (f *fakeRecovery) CreateEmailVerificationToken(_ context.Context, userID uuid.UUID, tokenHash string, _, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailTokens[tokenHash] = userID
	return nil
}

func (f *fakeRecovery) ConsumeEmailVerificationToken(_ context.Context, tokenHash string, _ time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.emailTokens[tokenHash]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	delete(f.emailTokens, tokenHash)
	return userID, nil
}

type fakeCredentials struct {
	users *fakeUsers
}

func (f *fakeCredentials) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string, updatedAt time.Time) error {
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	user, ok := f.users.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = &updatedAt
	f.users.store(user)
	return nil
}

func (f *fakeCredentials) SetEmailVerified(_ context.Context, userID uuid.UUID, verified bool, _ time.Time) error {
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	user, ok := f.users.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.EmailVerified = verified
	f.users.store(user)
	return nil
}

type fakeHasher struct{}

func (f *fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (f *fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type fakeSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.AuthClaims
}

func (f *fakeSigner) Sign(claims ports.AuthClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.tokens[token] = claims
	return token, nil
}

func (f *fakeSigner) ParseAndValidate(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.tokens[token]
	if !ok {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

func (f *fakeSigner) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{{"kid": "fake"}}, nil
}
