package apperrors

import (
	"errors"
	"fmt"
)

var (
	// Credential is missing entirely (no cookie, no bearer header)
	ErrUnauthenticated = errors.New("authentication required")

	// Signature is valid but the token lifetime has lapsed
	ErrTokenExpired = errors.New("token expired")

	// Signature is valid but the token role is wrong for the endpoint
	// (refresh token presented as access token or vice versa)
	ErrTokenInvalidType = errors.New("invalid token type")

	// Signature or structure of the token is invalid
	ErrTokenMalformed = errors.New("invalid token")

	// Identity provider rejected the password
	// Intentionally the same for "wrong password" and "no such user"
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")

	// Authenticated but not entitled to the target resource
	ErrForbidden = errors.New("access denied")

	ErrSubscriptionNotFound = errors.New("subscription not found")

	// Single-use rotation mode only
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenUsed     = errors.New("refresh token is used")

	// Identity provider transport failure
	// Provider-internal error text must never reach the client
	ErrIdentityUnavailable = errors.New("identity provider unavailable")

	// Base error for password policy failures, see PolicyError
	ErrPasswordPolicy = errors.New("password policy violation")
)

// PolicyError carries the human readable reason of the first failing
// password rule. Matches ErrPasswordPolicy via errors.Is.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("password policy violation: %s", e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return ErrPasswordPolicy
}
