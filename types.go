package sessiongate

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityProvider is the contract with the external identity provider. It
// owns credential verification, token issuance, and token revocation; this
// module only calls through it.
//
// Register may return an empty token when the provider defers session
// creation (e.g. email confirmation); callers must treat that as
// "registered, no session yet" rather than a failure.
type IdentityProvider interface {
	Login(ctx context.Context, email, password string) (string, UserSummary, error)
	Register(ctx context.Context, email, password string) (string, UserSummary, error)
	Validate(ctx context.Context, token string) (UserSummary, error)
	Logout(ctx context.Context, token string) error
}

// ProfileStore reads one profile record keyed by user id.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSIONGATE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSIONGATE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSIONGATE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSIONGATE "+newline(format), args...)
}

// DefaultLogger returns the fallback logger used when a component is built
// without one.
func DefaultLogger() Logger {
	return defLogger{}
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
