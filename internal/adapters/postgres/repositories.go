package postgres

import (
	"gorm.io/gorm"

	"github.com/clearharbor/portal/services/auth-service/internal/ports"
)

type Repositories struct {
	Users          ports.UserRepository
	Sessions       ports.SessionRepository
	LoginAttempts  ports.LoginAttemptRepository
	SecurityEvents ports.SecurityEventRepository
	Outbox         ports.OutboxRepository
	Idempotency    ports.IdempotencyRepository
	Recovery       ports.RecoveryRepository
	Credentials    ports.CredentialRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:          &userRepository{db: db},
		Sessions:       &sessionRepository{db: db},
		LoginAttempts:  &loginAttemptRepository{db: db},
		SecurityEvents: &securityEventRepository{db: db},
		Outbox:         &outboxRepository{db: db},
		Idempotency:    &idempotencyRepository{db: db},
		Recovery:       &recoveryRepository{db: db},
		Credentials:    &credentialRepository{db: db},
	}
}
