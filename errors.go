package sessiongate

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes let callers classify failures without string matching.
const (
	TextCodeNetworkError    = "NETWORK_ERROR"
	TextCodeInvalidCreds    = "INVALID_CREDENTIALS"
	TextCodeMissingToken    = "MISSING_TOKEN"
	TextCodeInvalidToken    = "INVALID_TOKEN"
	TextCodeProfileNotFound = "PROFILE_NOT_FOUND"
	TextCodeStorageError    = "STORAGE_ERROR"
	TextCodeConfigError     = "CONFIG_ERROR"
	TextCodeProviderError   = "PROVIDER_ERROR"
	TextCodeBusy            = "OPERATION_IN_FLIGHT"
)

// ErrNetwork is returned when the transport to the provider or gateway fails.
var ErrNetwork = goerrors.New("network error reaching the identity service", goerrors.CategoryOperation).
	WithTextCode(TextCodeNetworkError)

// ErrInvalidCredentials is returned when the provider rejects a login.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingToken is returned when a protected request carries no bearer token.
var ErrMissingToken = goerrors.New("authentication token required", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is returned when a presented token fails validation.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeForbidden)

// ErrProfileNotFound is returned when no profile row matches the principal.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrStorage is returned when the local secret slot cannot be read or written.
var ErrStorage = goerrors.New("session storage unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeStorageError)

// ErrMissingEndpoint is returned when no API base URL was configured; auth
// operations fail fast instead of attempting network calls.
var ErrMissingEndpoint = goerrors.New("API URL not configured", goerrors.CategoryBadInput).
	WithTextCode(TextCodeConfigError).
	WithCode(goerrors.CodeBadRequest)

// ErrProvider is returned for opaque upstream provider faults.
var ErrProvider = goerrors.New("identity provider error", goerrors.CategoryInternal).
	WithTextCode(TextCodeProviderError).
	WithCode(goerrors.CodeInternal)

// ErrBusy is returned when a state machine operation is requested while
// another is still in flight.
var ErrBusy = goerrors.New("another auth operation is in flight", goerrors.CategoryConflict).
	WithTextCode(TextCodeBusy).
	WithCode(goerrors.CodeConflict)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsInvalidCredentials reports whether err is a rejected login.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCreds)
}

// IsMissingToken reports whether err is a request without a bearer token.
func IsMissingToken(err error) bool {
	return hasTextCode(err, TextCodeMissingToken)
}

// IsInvalidToken reports whether err is a failed token validation.
func IsInvalidToken(err error) bool {
	return hasTextCode(err, TextCodeInvalidToken)
}

// IsProfileNotFound reports whether err is a missing profile row.
func IsProfileNotFound(err error) bool {
	return hasTextCode(err, TextCodeProfileNotFound)
}

// IsStorageError reports whether err came from the local secret slot.
func IsStorageError(err error) bool {
	return hasTextCode(err, TextCodeStorageError)
}

// IsConfigError reports whether err is a missing-endpoint configuration fault.
func IsConfigError(err error) bool {
	return hasTextCode(err, TextCodeConfigError)
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	if hasTextCode(err, TextCodeNetworkError) {
		return true
	}
	if err == nil {
		return false
	}
	// Legacy transports surface timeouts as bare strings.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout")
}

// IsBusy reports whether err is a rejected overlapping operation.
func IsBusy(err error) bool {
	return hasTextCode(err, TextCodeBusy)
}
