package auth

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"
)

// SecureTokenBytes is the number of random bytes behind every verification
// and reset token. Hex encoding doubles it.
const SecureTokenBytes = 32

const (
	ResetTokenTTLHours        = 1
	VerificationTokenTTLHours = 24
)

// TokenGenerator mints single use secrets and answers expiry questions
// against its clock.
type TokenGenerator struct {
	now    func() time.Time
	random io.Reader
}

// TokenGeneratorOption customizes a TokenGenerator.
type TokenGeneratorOption func(*TokenGenerator)

// WithClock injects the clock used for expiry computations.
func WithClock(now func() time.Time) TokenGeneratorOption {
	return func(g *TokenGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRandomSource replaces crypto/rand. Only tests should need it.
func WithRandomSource(r io.Reader) TokenGeneratorOption {
	return func(g *TokenGenerator) {
		if r != nil {
			g.random = r
		}
	}
}

func NewTokenGenerator(opts ...TokenGeneratorOption) *TokenGenerator {
	g := &TokenGenerator{
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Generate returns 32 random bytes hex encoded.
func (g *TokenGenerator) Generate() (string, error) {
	buf := make([]byte, SecureTokenBytes)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", Internal(err, "failed to read random bytes")
	}
	return hex.EncodeToString(buf), nil
}

// Expiry returns now plus the given number of hours.
func (g *TokenGenerator) Expiry(hours int) time.Time {
	return g.now().Add(time.Duration(hours) * time.Hour)
}

// IsExpired treats a missing expiry as expired. The boundary instant is
// still valid.
func (g *TokenGenerator) IsExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return g.now().After(*expiresAt)
}

// Now exposes the generator clock.
func (g *TokenGenerator) Now() time.Time {
	return g.now()
}
