package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

func toDomainUser(row userModel) domain.User {
	ip := ""
	if row.LastLoginIP != nil {
		ip = *row.LastLoginIP
	}
	return domain.User{
		UserID:              row.UserID,
		Username:            row.Username,
		Email:               row.Email,
		PasswordHash:        row.PasswordHash,
		Role:                row.Role,
		EmailVerified:       row.EmailVerified,
		IsActive:            row.IsActive,
		FailedLoginAttempts: row.FailedLoginAttempts,
		LockedUntil:         row.LockedUntil,
		LastLoginAt:         row.LastLoginAt,
		LastLoginIP:         ip,
		PasswordChangedAt:   row.PasswordChangedAt,
		DeletedAt:           row.DeletedAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.Session{
		SessionID:      row.SessionID,
		UserID:         row.UserID,
		DeviceName:     row.DeviceName,
		DeviceOS:       row.DeviceOS,
		IPAddress:      ip,
		UserAgent:      row.UserAgent,
		CreatedAt:      row.CreatedAt,
		LastActivityAt: row.LastActivityAt,
		ExpiresAt:      row.ExpiresAt,
		RevokedAt:      row.RevokedAt,
	}
}

func toDomainLoginAttempt(row loginAttemptModel) domain.LoginAttempt {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.LoginAttempt{
		ID:            row.ID,
		UserID:        row.UserID,
		AttemptAt:     row.AttemptAt,
		IPAddress:     ip,
		Status:        row.Status,
		FailureReason: row.FailureReason,
		DeviceName:    row.DeviceName,
		DeviceOS:      row.DeviceOS,
		UserAgent:     row.UserAgent,
	}
}

func toSecurityEventModel(event domain.SecurityEvent) securityEventModel {
	return securityEventModel{
		UserID:     event.UserID,
		Kind:       string(event.Kind),
		Severity:   string(event.Severity),
		Identifier: event.Identifier,
		IPAddress:  nullableString(event.IPAddress),
		UserAgent:  event.UserAgent,
		Detail:     event.Detail,
		OccurredAt: event.OccurredAt,
	}
}

func toDomainSecurityEvent(row securityEventModel) domain.SecurityEvent {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.SecurityEvent{
		ID:         row.ID,
		UserID:     row.UserID,
		Kind:       domain.EventKind(row.Kind),
		Severity:   domain.Severity(row.Severity),
		Identifier: row.Identifier,
		IPAddress:  ip,
		UserAgent:  row.UserAgent,
		Detail:     row.Detail,
		OccurredAt: row.OccurredAt,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
