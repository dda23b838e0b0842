package models

import (
	"time"
)

// User mirrors the identity provider record in our own store.
// ID is the provider subject id, not a locally generated one.
type User struct {
	ID            string
	Email         string
	Name          string
	PhotoURL      string
	EmailVerified bool
	CreatedAt     time.Time

	// Set only when the service runs with the local password check mode.
	// Empty in the delegated (default) configuration.
	PasswordHash string
}

// Principal is the authenticated identity derived from a valid access
// token or a verified provider ID token. Never persisted.
type Principal struct {
	SubjectID string
	Email     string
	Scope     string
}
