package auth

import (
	"strings"
	"unicode"

	"github.com/subtrackhq/subtrack/internal/apperrors"
)

// Fixed punctuation set a password must draw at least one symbol from
const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// ValidatePassword checks registration password rules. All rules are
// mandatory; the reason of the first failing one is returned.
func ValidatePassword(password string, email string) error {
	if len(password) < 6 {
		return &apperrors.PolicyError{Reason: "Password must be at least 6 characters long"}
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter {
		return &apperrors.PolicyError{Reason: "Password must contain at least one letter"}
	}
	if !hasDigit {
		return &apperrors.PolicyError{Reason: "Password must contain at least one number"}
	}
	if !strings.ContainsAny(password, passwordSymbols) {
		return &apperrors.PolicyError{Reason: "Password must contain at least one special character"}
	}

	// The local part of the email split on '.' must not leak into the
	// password: segments longer than 3 are rejected as substrings
	localPart, _, _ := strings.Cut(email, "@")
	lowered := strings.ToLower(password)
	for _, part := range strings.Split(localPart, ".") {
		if len(part) > 3 && strings.Contains(lowered, strings.ToLower(part)) {
			return &apperrors.PolicyError{Reason: "Password should not contain parts of your email"}
		}
	}

	return nil
}
