package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// LocalsIdentityKey is where the gate stores the identity on the request.
const LocalsIdentityKey = "user"

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentity sets the identity in the given context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity in the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityCtxKey).(Identity)
	return identity, ok
}

// IdentityFromRouter reads the identity the gate stored on ctx.
func IdentityFromRouter(ctx router.Context) (Identity, bool) {
	if identity, ok := IdentityFromContext(ctx.Context()); ok {
		return identity, true
	}
	identity, ok := ctx.Locals(LocalsIdentityKey).(Identity)
	return identity, ok
}

// IdentityFromFiber reads the identity the gate stored on c.
func IdentityFromFiber(c *fiber.Ctx) (Identity, bool) {
	if identity, ok := IdentityFromContext(c.UserContext()); ok {
		return identity, true
	}
	identity, ok := c.Locals(LocalsIdentityKey).(Identity)
	return identity, ok
}
