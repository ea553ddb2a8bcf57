package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// JWTClaims is the payload of every session token.
type JWTClaims struct {
	jwt.RegisteredClaims
	Email string    `json:"email,omitempty"`
	Type  TokenType `json:"typ,omitempty"`
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the account id carried by the token
func (c *JWTClaims) UserID() string {
	return c.Subject()
}

func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

// IsRefresh reports whether the token may only be used to mint new tokens.
func (c *JWTClaims) IsRefresh() bool {
	return c.Type == TokenTypeRefresh
}
