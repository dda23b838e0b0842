package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/subtrackhq/subtrack/internal/apperrors"
)

// Token type discriminant. Access endpoints must reject refresh tokens
// and vice versa, so a leaked refresh token cannot be replayed as an
// access token and an access token cannot mint new pairs.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"type"`
}

// TokenCodec signs and verifies claims with a symmetric key.
// The MAC algorithm is fixed server-side: the alg header of an incoming
// token is never trusted.
type TokenCodec struct {
	key []byte
	alg jwt.SigningMethod
}

func (c TokenCodec) Encode(claims Claims) (string, error) {
	token := jwt.NewWithClaims(c.alg, claims)

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("error while signing token. Err: %w", err)
	}

	return signed, nil
}

// Decode parses and verifies a token
// Returns apperrors.ErrTokenExpired for a lapsed but well-signed token
// and apperrors.ErrTokenMalformed for everything else that fails
func (c TokenCodec) Decode(raw string) (Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(t *jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
	)

	switch {
	case err == nil:
		return *claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return *claims, fmt.Errorf("token check failed: %w", apperrors.ErrTokenExpired)
	default:
		return *claims, fmt.Errorf("token check failed: %w", apperrors.ErrTokenMalformed)
	}
}
