package sessiongate

import (
	goerrors "github.com/goliatone/go-errors"
)

// AuthResult is the determinate outcome of a client-facing auth operation.
// Every call returns one; callers never see a raised fault.
//
// Pending marks the registration path where the provider created the account
// but issued no token (confirmation flow): the result is a success, but no
// session was established.
type AuthResult struct {
	Token   string
	User    UserSummary
	Pending bool
	Err     *goerrors.Error
}

// OK reports whether the operation succeeded (including the pending case).
func (r AuthResult) OK() bool {
	return r.Err == nil
}

// Success builds a result for an established session.
func Success(token string, user UserSummary) AuthResult {
	return AuthResult{Token: token, User: user}
}

// PendingResult builds a result for a registration that issued no token.
func PendingResult(user UserSummary) AuthResult {
	return AuthResult{User: user, Pending: true}
}

// Failure wraps err into a failed result, coercing non-rich errors into the
// provider-fault category so callers always get a classified reason.
func Failure(err error) AuthResult {
	if err == nil {
		return AuthResult{Err: ErrProvider}
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = goerrors.Wrap(err, goerrors.CategoryInternal, "identity provider error").
			WithTextCode(TextCodeProviderError)
	}

	return AuthResult{Err: rich}
}
