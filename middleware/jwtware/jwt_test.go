package jwtware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safebite/safebite-api/auth"
	"github.com/safebite/safebite-api/middleware/jwtware"
)

var maria = auth.Identity{ID: "user-1", Email: "maria@example.com", FullName: "Maria Silva"}

type stubValidator struct {
	tokens map[string]error
}

func (s stubValidator) ValidateAccess(token string) (*auth.JWTClaims, error) {
	err, ok := s.tokens[token]
	if !ok {
		return nil, auth.ErrTokenMalformed
	}
	if err != nil {
		return nil, err
	}
	claims := &auth.JWTClaims{Email: maria.Email, Type: auth.TokenTypeAccess}
	claims.RegisteredClaims.Subject = token
	return claims, nil
}

type stubResolver struct{}

func (stubResolver) FindIdentity(_ context.Context, subject string) (auth.Identity, error) {
	if subject == "user-1" {
		return maria, nil
	}
	return auth.Identity{}, auth.ErrUserNotFound
}

func newConfig() jwtware.Config {
	return jwtware.Config{
		TokenValidator: stubValidator{tokens: map[string]error{
			"user-1":  nil,
			"deleted": nil,
			"expired": auth.ErrTokenExpired,
		}},
		IdentityResolver: stubResolver{},
	}
}

func newApp(gate router.MiddlewareFunc) *fiber.App {
	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{ErrorHandler: auth.NewErrorHandler(nil, false)})
		return app
	})
	srv.Router().Get("/whoami", func(ctx router.Context) error {
		fromLocals, _ := ctx.Locals(auth.LocalsIdentityKey).(auth.Identity)
		fromCtx, ok := auth.IdentityFromContext(ctx.Context())
		return ctx.JSON(http.StatusOK, map[string]any{
			"locals": fromLocals.Email,
			"ctx":    fromCtx.Email,
			"found":  ok,
		})
	}, gate)
	return app
}

func newFiberApp(gate fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.NewErrorHandler(nil, false)})
	app.Get("/whoami", gate, func(c *fiber.Ctx) error {
		identity, ok := auth.IdentityFromFiber(c)
		return c.JSON(fiber.Map{
			"locals": identity.Email,
			"ctx":    identity.Email,
			"found":  ok,
		})
	})
	return app
}

func call(t *testing.T, app *fiber.App, header string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestNew(t *testing.T) {
	app := newApp(jwtware.New(newConfig()))

	t.Run("attaches the identity", func(t *testing.T) {
		status, body := call(t, app, "Bearer user-1")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "maria@example.com", body["locals"])
		assert.Equal(t, "maria@example.com", body["ctx"])
		assert.Equal(t, true, body["found"])
	})

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "authentication token not provided"},
		{"wrong scheme", "Token user-1", "invalid token format, use: Bearer <token>"},
		{"double space", "Bearer  user-1", "invalid token format, use: Bearer <token>"},
		{"extra part", "Bearer user-1 more", "invalid token format, use: Bearer <token>"},
		{"bare token", "user-1", "invalid token format, use: Bearer <token>"},
		{"expired token", "Bearer expired", "token expired"},
		{"unknown token", "Bearer nope", "invalid token"},
		{"deleted account", "Bearer deleted", "user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, app, tt.header)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestNewFiber(t *testing.T) {
	app := newFiberApp(jwtware.NewFiber(newConfig()))

	status, body := call(t, app, "Bearer user-1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "maria@example.com", body["locals"])

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "authentication token not provided"},
		{"double space", "Bearer  user-1", "invalid token format, use: Bearer <token>"},
		{"expired token", "Bearer expired", "token expired"},
		{"deleted account", "Bearer deleted", "user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, app, tt.header)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestNewOptional(t *testing.T) {
	app := newApp(jwtware.NewOptional(newConfig()))

	for _, header := range []string{"", "Bearer nope", "Token user-1", "Bearer expired", "Bearer deleted"} {
		t.Run("anonymous "+header, func(t *testing.T) {
			status, body := call(t, app, header)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, false, body["found"])
			assert.Equal(t, "", body["locals"])
		})
	}

	t.Run("valid token attaches the identity", func(t *testing.T) {
		status, body := call(t, app, "Bearer user-1")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["found"])
	})
}

func TestValidationListeners(t *testing.T) {
	cfg := newConfig()
	cfg.ValidationListeners = []jwtware.ValidationListener{
		func(_ context.Context, claims *auth.JWTClaims, identity auth.Identity) error {
			return goerrors.New("account locked", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized)
		},
	}
	app := newApp(jwtware.New(cfg))

	status, body := call(t, app, "Bearer user-1")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "account locked", body["message"])
}

func TestTokenFromHeader(t *testing.T) {
	token, err := jwtware.TokenFromHeader("Bearer abc", "Bearer")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = jwtware.TokenFromHeader("", "Bearer")
	assert.ErrorIs(t, err, jwtware.ErrMissingToken)

	_, err = jwtware.TokenFromHeader("bearer abc", "Bearer")
	assert.ErrorIs(t, err, jwtware.ErrMalformedHeader)
}

func TestGetDefaultConfig(t *testing.T) {
	assert.Panics(t, func() { jwtware.GetDefaultConfig() })
	assert.Panics(t, func() {
		jwtware.GetDefaultConfig(jwtware.Config{TokenValidator: stubValidator{}})
	})

	cfg := jwtware.GetDefaultConfig(newConfig())
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, router.HeaderAuthorization, cfg.Header)
	assert.Equal(t, auth.LocalsIdentityKey, cfg.ContextKey)
}
