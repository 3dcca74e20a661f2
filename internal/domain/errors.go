package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the identifier or the password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	// This supports brute-force mitigation and a predictable user-facing response.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned for deactivated accounts after the
	// password has already been verified, so the wording never leaks whether
	// the credentials were right for an unknown caller.
	ErrAccountDisabled        = errors.New("account disabled")
	ErrSessionRevoked         = errors.New("session revoked")
	ErrSessionExpired         = errors.New("session expired")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidInput           = errors.New("invalid input")
	ErrConflict               = errors.New("conflict")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrTokenExpired           = errors.New("token expired")
	ErrTokenConsumed          = errors.New("token already consumed")
	ErrRateLimited            = errors.New("rate limited")
	ErrCurrentPasswordInvalid = errors.New("current password invalid")
)
