package common

import "context"

type ctxKey string

const identityKey ctxKey = "auth/identity"

// Identity is the opaque caller identity supplied by the auth collaborator.
// The core never computes it; an upstream middleware attaches it.
type Identity struct {
	UserID      string
	Role        string
	LocationIDs []string
}

// WithIdentity stores the caller identity on the provided context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the caller identity from the context if present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	v := ctx.Value(identityKey)
	if v == nil {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// UserID is a convenience accessor for the authenticated user id.
func UserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}
