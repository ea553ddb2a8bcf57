package jwtware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	"github.com/safebite/safebite-api/auth"
	"github.com/safebite/safebite-api/logging"
)

const (
	TextCodeMissingToken    = "TOKEN_MISSING"
	TextCodeMalformedHeader = "AUTH_HEADER_MALFORMED"
)

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = goerrors.New("authentication token not provided", goerrors.CategoryAuth).
			WithTextCode(TextCodeMissingToken).
			WithCode(goerrors.CodeUnauthorized)

	// ErrMalformedHeader is returned when the header is not "<scheme> <token>".
	ErrMalformedHeader = goerrors.New("invalid token format, use: Bearer <token>", goerrors.CategoryAuth).
				WithTextCode(TextCodeMalformedHeader).
				WithCode(goerrors.CodeUnauthorized)
)

// TokenValidator validates access tokens.
type TokenValidator interface {
	ValidateAccess(tokenString string) (*auth.JWTClaims, error)
}

// IdentityResolver loads the identity behind a token subject.
type IdentityResolver interface {
	FindIdentity(ctx context.Context, subject string) (auth.Identity, error)
}

// ValidationListener is invoked after the identity has been resolved.
type ValidationListener func(ctx context.Context, claims *auth.JWTClaims, identity auth.Identity) error

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	ContextKey     string
	Header         string
	AuthScheme     string
	// TokenValidator is required for token validation
	TokenValidator TokenValidator
	// IdentityResolver is required; tokens for deleted accounts are rejected
	IdentityResolver    IdentityResolver
	ValidationListeners []ValidationListener
	Logger              logging.Logger
}

// New returns the required gate. Every failure is handed to ErrorHandler.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			identity, err := cfg.authenticate(ctx.Context(), ctx.Header(cfg.Header))
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, identity)
			ctx.SetContext(auth.WithIdentity(ctx.Context(), identity))

			return cfg.SuccessHandler(ctx)
		}
	}
}

// NewOptional never rejects: on any failure the request continues without
// an identity.
func NewOptional(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			identity, err := cfg.authenticate(ctx.Context(), ctx.Header(cfg.Header))
			if err != nil {
				if err != ErrMissingToken {
					cfg.Logger.Debug("optional auth ignored credentials: %v", err)
				}
				return ctx.Next()
			}

			ctx.Locals(cfg.ContextKey, identity)
			ctx.SetContext(auth.WithIdentity(ctx.Context(), identity))

			return cfg.SuccessHandler(ctx)
		}
	}
}

// NewFiber is the required gate for routes mounted directly on fiber, such as
// multipart uploads. Failures are returned to the app error handler.
func NewFiber(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	return func(c *fiber.Ctx) error {
		identity, err := cfg.authenticate(c.UserContext(), c.Get(cfg.Header))
		if err != nil {
			return err
		}

		c.Locals(cfg.ContextKey, identity)
		c.SetUserContext(auth.WithIdentity(c.UserContext(), identity))

		return c.Next()
	}
}

func (cfg *Config) authenticate(ctx context.Context, header string) (auth.Identity, error) {
	raw, err := TokenFromHeader(header, cfg.AuthScheme)
	if err != nil {
		return auth.Identity{}, err
	}

	claims, err := cfg.TokenValidator.ValidateAccess(raw)
	if err != nil {
		return auth.Identity{}, err
	}

	identity, err := cfg.IdentityResolver.FindIdentity(ctx, claims.UserID())
	if err != nil {
		return auth.Identity{}, err
	}

	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims, identity); err != nil {
			return auth.Identity{}, err
		}
	}

	return identity, nil
}

// TokenFromHeader accepts exactly "<scheme> <token>" with a single space.
func TokenFromHeader(value, scheme string) (string, error) {
	if value == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(value, " ")
	if len(parts) != 2 || parts[0] != scheme {
		return "", ErrMalformedHeader
	}

	return parts[1], nil
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ router.Context, err error) error {
			return err
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.IdentityResolver == nil {
		panic("AUTH: JWT middleware configuration: IdentityResolver is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = auth.LocalsIdentityKey
	}

	if cfg.Header == "" {
		cfg.Header = router.HeaderAuthorization
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return cfg
}
