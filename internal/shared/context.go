package shared

import "context"

type identityContextKey struct{}

// ContextWithIdentity stores the authenticated identity in context.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the authenticated identity from context.
// The empty string means no identity was attached.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityContextKey{}).(string)
	return identity
}
