package models

import "context"

type contextKey string

// IdentityContextKey holds the authenticated Identity of an HTTP request.
const IdentityContextKey contextKey = "identity"

// GetIdentityFromContext extracts the Identity placed by the auth middleware.
func GetIdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(Identity)
	return identity, ok
}
