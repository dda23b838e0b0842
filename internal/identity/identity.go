// Package identity adapts an external identity provider speaking the
// Google Identity Toolkit REST dialect. The provider is the system of
// record for credentials: password verification, account creation and
// federated ID token checks all happen on its side.
package identity

import (
	"context"
)

// UserRecord is the provider's view of an account
type UserRecord struct {
	UID           string
	Email         string
	Name          string
	PhotoURL      string
	EmailVerified bool
}

type Provider interface {
	// Verify email and password, return the subject id
	// Must return apperrors.ErrInvalidCredentials for both a wrong
	// password and an unknown email
	VerifyPassword(ctx context.Context, email string, password string) (string, error)

	// Verify a federated ID token issued by the provider itself
	VerifyIDToken(ctx context.Context, idToken string) (UserRecord, error)

	// Create account, return the subject id
	// Must return apperrors.ErrEmailAlreadyExists on duplicate email
	CreateUser(ctx context.Context, email string, password string) (string, error)

	// Look up account by subject id
	// Must return apperrors.ErrUserNotFound for unknown ids
	GetUser(ctx context.Context, uid string) (UserRecord, error)

	// Fire-and-forget reset email. Must not report whether the email
	// is registered
	SendPasswordReset(ctx context.Context, email string) error

	// Ask the provider to send a verification email
	SendEmailVerification(ctx context.Context, email string) error
}
