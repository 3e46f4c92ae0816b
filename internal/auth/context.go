package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Roles    []string
}

// ContextWithIdentity returns a new context carrying the authenticated caller.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the authenticated caller from the context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || identity.UserID == uuid.Nil {
		return Identity{}, false
	}
	return identity, true
}
