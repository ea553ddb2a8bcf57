package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL = 24 * time.Hour
	// RefreshTokenTTL is fixed and ignores configuration.
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenServiceConfig is read once at construction.
type TokenServiceConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration
	Issuer     string
}

// TokenPair is what login, register and refresh hand back.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService issues and validates HS256 session tokens.
type TokenService struct {
	signingKey []byte
	accessTTL  time.Duration
	issuer     string
	now        func() time.Time
	logger     Logger
}

// TokenServiceOption customizes a TokenService.
type TokenServiceOption func(*TokenService)

func WithTokenServiceClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

func WithTokenServiceLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService fails when the signing key is empty.
func NewTokenService(cfg TokenServiceConfig, opts ...TokenServiceOption) (*TokenService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	ts := &TokenService{
		signingKey: key,
		accessTTL:  ttl,
		issuer:     cfg.Issuer,
		now:        time.Now,
		logger:     defLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts, nil
}

// AccessTTL returns the configured access token lifetime.
func (ts *TokenService) AccessTTL() time.Duration {
	return ts.accessTTL
}

// IssueAccess signs an access token. A zero ttl uses the configured one.
func (ts *TokenService) IssueAccess(identity Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = ts.accessTTL
	}
	return ts.issue(identity, TokenTypeAccess, ttl)
}

// IssueRefresh signs a refresh token valid for RefreshTokenTTL.
func (ts *TokenService) IssueRefresh(identity Identity) (string, error) {
	return ts.issue(identity, TokenTypeRefresh, RefreshTokenTTL)
}

// IssuePair signs both tokens for identity.
func (ts *TokenService) IssuePair(identity Identity) (TokenPair, error) {
	access, err := ts.IssueAccess(identity, 0)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := ts.IssueRefresh(identity)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (ts *TokenService) issue(identity Identity, typ TokenType, ttl time.Duration) (string, error) {
	if identity.ID == "" {
		return "", goerrors.New("identity id must not be empty", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: identity.Email,
		Type:  typ,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", Internal(err, "failed to sign JWT")
	}
	return signed, nil
}

// Validate parses a token of any type. The error is always one of
// ErrTokenExpired, ErrTokenMalformed or ErrTokenUnverifiable.
func (ts *TokenService) Validate(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service: unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, withCause(ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, withCause(ErrTokenMalformed, err)
		default:
			return nil, withCause(ErrTokenUnverifiable, err)
		}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Subject() == "" {
		return nil, ErrTokenUnverifiable
	}
	return claims, nil
}

// ValidateAccess rejects refresh tokens.
func (ts *TokenService) ValidateAccess(tokenString string) (*JWTClaims, error) {
	return ts.validateType(tokenString, TokenTypeAccess)
}

// ValidateRefresh rejects access tokens.
func (ts *TokenService) ValidateRefresh(tokenString string) (*JWTClaims, error) {
	return ts.validateType(tokenString, TokenTypeRefresh)
}

func (ts *TokenService) validateType(tokenString string, want TokenType) (*JWTClaims, error) {
	claims, err := ts.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, withCause(ErrTokenUnverifiable, fmt.Errorf("expected %s token, got %q", want, claims.Type))
	}
	return claims, nil
}

// ParseTTL accepts Go durations plus a day suffix ("7d"). Bare integers are
// hours.
func ParseTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultAccessTokenTTL, nil
	}

	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid ttl %q", value)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	if hours, err := strconv.Atoi(value); err == nil {
		if hours <= 0 {
			return 0, fmt.Errorf("invalid ttl %q", value)
		}
		return time.Duration(hours) * time.Hour, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid ttl %q", value)
	}
	return d, nil
}
