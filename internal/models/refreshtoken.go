package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the server-side ledger record used by the single-use
// rotation mode. The stateless (default) mode never writes these.
type RefreshToken struct {
	ID        uuid.UUID // token jti
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil if token not used
}
