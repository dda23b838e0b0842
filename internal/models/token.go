package models

import (
	"time"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued together on login, registration or rotation.
// Never reissued independently for the same login event.
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
