package domain

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// PasswordChecks itemizes the policy rules a candidate password satisfied.
// Handlers serialize it so clients can render per-rule feedback.
type PasswordChecks struct {
	MinLength bool `json:"min_length"`
	HasUpper  bool `json:"has_upper"`
	HasLower  bool `json:"has_lower"`
	HasDigit  bool `json:"has_digit"`
	HasSymbol bool `json:"has_symbol"`
}

// WeakPasswordError carries the itemized policy result for a rejected password.
type WeakPasswordError struct {
	Checks PasswordChecks
	Reason string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// Is lets callers match via errors.Is(err, ErrInvalidInput).
func (e *WeakPasswordError) Unwrap() error { return ErrInvalidInput }

// CheckPassword evaluates every policy rule without short-circuiting.
func CheckPassword(password string) PasswordChecks {
	checks := PasswordChecks{
		MinLength: len(password) >= minPasswordLength,
	}
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			checks.HasUpper = true
		case unicode.IsLower(r):
			checks.HasLower = true
		case unicode.IsDigit(r):
			checks.HasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			checks.HasSymbol = true
		}
	}
	return checks
}

// ValidatePassword enforces the portal password policy.
func ValidatePassword(password string) error {
	if len(password) > maxPasswordLength {
		return &WeakPasswordError{
			Checks: CheckPassword(password),
			Reason: fmt.Sprintf("password must be <= %d characters", maxPasswordLength),
		}
	}

	checks := CheckPassword(password)
	switch {
	case !checks.MinLength:
		return &WeakPasswordError{Checks: checks, Reason: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	case !checks.HasUpper || !checks.HasLower || !checks.HasDigit || !checks.HasSymbol:
		return &WeakPasswordError{Checks: checks, Reason: "password must include upper, lower, digit, and symbol"}
	}

	lowered := strings.ToLower(password)
	for _, banned := range []string{"password", "qwerty", "123456", "letmein"} {
		if strings.Contains(lowered, banned) {
			return &WeakPasswordError{Checks: checks, Reason: "password includes weak pattern"}
		}
	}

	return nil
}
