package application

import (
	"time"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
	"github.com/clearharbor/portal/services/auth-service/internal/ports"
)

type Service struct {
	cfg            Config
	policy         domain.LockoutPolicy
	users          ports.UserRepository
	sessions       ports.SessionRepository
	loginAttempts  ports.LoginAttemptRepository
	securityEvents ports.SecurityEventRepository
	outbox         ports.OutboxRepository
	idempotency    ports.IdempotencyRepository
	recovery       ports.RecoveryRepository
	credentials    ports.CredentialRepository
	lockouts       ports.LockoutStore
	revocations    ports.SessionRevocationStore
	hasher         ports.PasswordHasher
	tokenSigner    ports.TokenSigner
	nowFn          func() time.Time
}

type Dependencies struct {
	Config         Config
	Users          ports.UserRepository
	Sessions       ports.SessionRepository
	LoginAttempts  ports.LoginAttemptRepository
	SecurityEvents ports.SecurityEventRepository
	Outbox         ports.OutboxRepository
	Idempotency    ports.IdempotencyRepository
	Recovery       ports.RecoveryRepository
	Credentials    ports.CredentialRepository
	Lockouts       ports.LockoutStore
	Revocations    ports.SessionRevocationStore
	Hasher         ports.PasswordHasher
	TokenSigner    ports.TokenSigner
}

func NewService(deps Dependencies) *Service {
	return &Service{
		cfg: deps.Config,
		policy: domain.LockoutPolicy{
			MaxAttempts:     deps.Config.FailedLoginThreshold,
			LockoutDuration: deps.Config.LockoutDuration,
		},
		users:          deps.Users,
		sessions:       deps.Sessions,
		loginAttempts:  deps.LoginAttempts,
		securityEvents: deps.SecurityEvents,
		outbox:         deps.Outbox,
		idempotency:    deps.Idempotency,
		recovery:       deps.Recovery,
		credentials:    deps.Credentials,
		lockouts:       deps.Lockouts,
		revocations:    deps.Revocations,
		hasher:         deps.Hasher,
		tokenSigner:    deps.TokenSigner,
		nowFn:          func() time.Time { return time.Now().UTC() },
	}
}
