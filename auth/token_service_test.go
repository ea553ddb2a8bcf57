package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safebite/safebite-api/auth"
)

var testIdentity = auth.Identity{
	ID:       "0d9c7f4e-1c5a-4b8e-9d3a-4f2b6e7a8c91",
	Email:    "maria@example.com",
	FullName: "Maria Silva",
}

func TestNewTokenService(t *testing.T) {
	t.Run("requires a signing key", func(t *testing.T) {
		_, err := auth.NewTokenService(auth.TokenServiceConfig{})
		assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
	})

	t.Run("defaults the access ttl", func(t *testing.T) {
		ts := newTestTokenService(t)
		assert.Equal(t, auth.DefaultAccessTokenTTL, ts.AccessTTL())
	})

	t.Run("honors a configured access ttl", func(t *testing.T) {
		ts, err := auth.NewTokenService(auth.TokenServiceConfig{
			SigningKey: []byte(testSigningKey),
			AccessTTL:  2 * time.Hour,
		})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Hour, ts.AccessTTL())
	})
}

func TestTokenService_IssuePair(t *testing.T) {
	clock := newFixedClock()
	ts := newTestTokenService(t, auth.WithTokenServiceClock(clock.Now))

	pair, err := ts.IssuePair(testIdentity)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	t.Run("access token claims", func(t *testing.T) {
		claims, err := ts.ValidateAccess(pair.AccessToken)
		require.NoError(t, err)

		assert.Equal(t, testIdentity.ID, claims.UserID())
		assert.Equal(t, testIdentity.Email, claims.Email)
		assert.Equal(t, auth.TokenTypeAccess, claims.Type)
		assert.False(t, claims.IsRefresh())
		assert.Equal(t, "safebite-test", claims.Issuer)
		assert.NotEmpty(t, claims.ID)
		assert.WithinDuration(t, clock.Now(), claims.IssuedAt(), 0)
		assert.WithinDuration(t, clock.Now().Add(auth.DefaultAccessTokenTTL), claims.Expires(), 0)
	})

	t.Run("refresh token claims", func(t *testing.T) {
		claims, err := ts.ValidateRefresh(pair.RefreshToken)
		require.NoError(t, err)

		assert.True(t, claims.IsRefresh())
		assert.WithinDuration(t, clock.Now().Add(auth.RefreshTokenTTL), claims.Expires(), 0)
	})

	t.Run("token types are not interchangeable", func(t *testing.T) {
		_, err := ts.ValidateRefresh(pair.AccessToken)
		assert.ErrorIs(t, err, auth.ErrTokenUnverifiable)

		_, err = ts.ValidateAccess(pair.RefreshToken)
		assert.ErrorIs(t, err, auth.ErrTokenUnverifiable)
	})

	t.Run("rejects an empty identity", func(t *testing.T) {
		_, err := ts.IssuePair(auth.Identity{})
		assert.Error(t, err)
	})
}

func TestTokenService_Validate(t *testing.T) {
	clock := newFixedClock()
	ts := newTestTokenService(t, auth.WithTokenServiceClock(clock.Now))

	token, err := ts.IssueAccess(testIdentity, time.Hour)
	require.NoError(t, err)

	t.Run("valid until expiry", func(t *testing.T) {
		_, err := ts.Validate(token)
		assert.NoError(t, err)
	})

	t.Run("tampered signature is malformed", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		if parts[2][0] == 'A' {
			parts[2] = "B" + parts[2][1:]
		} else {
			parts[2] = "A" + parts[2][1:]
		}

		_, err := ts.Validate(strings.Join(parts, "."))
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("garbage is malformed", func(t *testing.T) {
		_, err := ts.Validate("not.a.jwt")
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)

		_, err = ts.Validate("")
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("foreign signing key is malformed", func(t *testing.T) {
		other, err := auth.NewTokenService(auth.TokenServiceConfig{
			SigningKey: []byte("another-key"),
			Issuer:     "safebite-test",
		}, auth.WithTokenServiceClock(clock.Now))
		require.NoError(t, err)

		foreign, err := other.IssueAccess(testIdentity, time.Hour)
		require.NoError(t, err)

		_, err = ts.Validate(foreign)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("other signing algorithms are rejected", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": testIdentity.ID,
			"typ": "access",
			"iss": "safebite-test",
			"exp": clock.Now().Add(time.Hour).Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSigningKey))
		require.NoError(t, err)

		_, err = ts.Validate(signed)
		require.Error(t, err)
		assert.True(t, auth.IsCategory(err, goerrors.CategoryAuth))
	})

	t.Run("wrong issuer is unverifiable", func(t *testing.T) {
		other, err := auth.NewTokenService(auth.TokenServiceConfig{
			SigningKey: []byte(testSigningKey),
			Issuer:     "someone-else",
		}, auth.WithTokenServiceClock(clock.Now))
		require.NoError(t, err)

		foreign, err := other.IssueAccess(testIdentity, time.Hour)
		require.NoError(t, err)

		_, err = ts.Validate(foreign)
		assert.ErrorIs(t, err, auth.ErrTokenUnverifiable)
	})

	t.Run("expired tokens are reported as expired", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		_, err := ts.Validate(token)
		assert.ErrorIs(t, err, auth.ErrTokenExpired)
		assert.NotErrorIs(t, err, auth.ErrTokenMalformed)
	})
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"", auth.DefaultAccessTokenTTL, false},
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"12", 12 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"0", 0, true},
		{"-1d", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := auth.ParseTTL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
