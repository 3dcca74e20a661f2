package domain_test

import (
	"errors"
	"testing"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		password  string
		wantError bool
	}{
		{name: "valid", password: "StrongSecret123!", wantError: false},
		{name: "valid at minimum length", password: "P@ssw0rd", wantError: false},
		{name: "too short", password: "Ab1!", wantError: true},
		{name: "no upper", password: "alllower123!", wantError: true},
		{name: "no lower", password: "ALLUPPER123!", wantError: true},
		{name: "no digit", password: "NoDigitsHere!", wantError: true},
		{name: "no symbol", password: "NoSymbolHere1234", wantError: true},
		{name: "banned pattern password", password: "MyPassword123!", wantError: true},
		{name: "banned pattern qwerty", password: "Qwerty123!x", wantError: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := domain.ValidatePassword(tc.password)
			if tc.wantError && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantError && err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("rejections must unwrap to invalid input, got %v", err)
			}
		})
	}
}

func TestValidatePasswordReportsChecks(t *testing.T) {
	t.Parallel()

	err := domain.ValidatePassword("nouppercase1")
	var weak *domain.WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("expected weak password error, got %v", err)
	}
	checks := weak.Checks
	if checks.HasUpper || checks.HasSymbol {
		t.Fatalf("expected upper and symbol to be unmet: %+v", checks)
	}
	if !checks.MinLength || !checks.HasLower || !checks.HasDigit {
		t.Fatalf("expected met rules to stay reported: %+v", checks)
	}
}

func TestValidatePasswordRejectsOverlong(t *testing.T) {
	t.Parallel()

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	if err := domain.ValidatePassword(string(long)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected overlong rejection, got %v", err)
	}
}

func TestCheckPasswordDoesNotShortCircuit(t *testing.T) {
	t.Parallel()

	checks := domain.CheckPassword("x")
	if checks.MinLength {
		t.Fatalf("one char must fail min length")
	}
	if !checks.HasLower {
		t.Fatalf("lower rule should still be evaluated")
	}
}
