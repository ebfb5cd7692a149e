package sessiongate

import (
	"context"
)

// Principal is the authenticated identity attached to a server request after
// token validation. It lives for the request only.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(Principal)
	return raw, ok
}
