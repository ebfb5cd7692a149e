package sessiongate_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fieldware/sessiongate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestStructuredErrorProperties(t *testing.T) {
	t.Run("ErrInvalidCredentials", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, sessiongate.ErrInvalidCredentials.Category)
		assert.Equal(t, sessiongate.TextCodeInvalidCreds, sessiongate.ErrInvalidCredentials.TextCode)
		assert.Equal(t, "the credentials provided are invalid", sessiongate.ErrInvalidCredentials.Message)
	})

	t.Run("ErrMissingToken", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, sessiongate.ErrMissingToken.Category)
		assert.Equal(t, sessiongate.TextCodeMissingToken, sessiongate.ErrMissingToken.TextCode)
		assert.Equal(t, goerrors.CodeUnauthorized, sessiongate.ErrMissingToken.Code)
	})

	t.Run("ErrInvalidToken", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuthz, sessiongate.ErrInvalidToken.Category)
		assert.Equal(t, sessiongate.TextCodeInvalidToken, sessiongate.ErrInvalidToken.TextCode)
		assert.Equal(t, goerrors.CodeForbidden, sessiongate.ErrInvalidToken.Code)
	})

	t.Run("ErrProfileNotFound", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryNotFound, sessiongate.ErrProfileNotFound.Category)
		assert.Equal(t, goerrors.CodeNotFound, sessiongate.ErrProfileNotFound.Code)
	})

	t.Run("ErrMissingEndpoint", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryBadInput, sessiongate.ErrMissingEndpoint.Category)
		assert.Equal(t, sessiongate.TextCodeConfigError, sessiongate.ErrMissingEndpoint.TextCode)
	})

	t.Run("ErrBusy", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryConflict, sessiongate.ErrBusy.Category)
		assert.Equal(t, sessiongate.TextCodeBusy, sessiongate.ErrBusy.TextCode)
	})
}

func TestClassificationHelpers(t *testing.T) {
	tests := []struct {
		name     string
		check    func(error) bool
		err      error
		expected bool
	}{
		{
			name:     "invalid credentials sentinel",
			check:    sessiongate.IsInvalidCredentials,
			err:      sessiongate.ErrInvalidCredentials,
			expected: true,
		},
		{
			name:     "wrapped invalid token",
			check:    sessiongate.IsInvalidToken,
			err:      fmt.Errorf("gateway: %w", sessiongate.ErrInvalidToken),
			expected: true,
		},
		{
			name:     "missing token is not invalid token",
			check:    sessiongate.IsInvalidToken,
			err:      sessiongate.ErrMissingToken,
			expected: false,
		},
		{
			name:     "storage sentinel",
			check:    sessiongate.IsStorageError,
			err:      sessiongate.ErrStorage,
			expected: true,
		},
		{
			name:     "config sentinel",
			check:    sessiongate.IsConfigError,
			err:      sessiongate.ErrMissingEndpoint,
			expected: true,
		},
		{
			name:     "busy sentinel",
			check:    sessiongate.IsBusy,
			err:      sessiongate.ErrBusy,
			expected: true,
		},
		{
			name:     "legacy network error (string match)",
			check:    sessiongate.IsNetworkError,
			err:      errors.New("dial tcp: connection refused"),
			expected: true,
		},
		{
			name:     "plain error is nothing in particular",
			check:    sessiongate.IsInvalidCredentials,
			err:      errors.New("boom"),
			expected: false,
		},
		{
			name:     "nil error",
			check:    sessiongate.IsMissingToken,
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.check(tt.err))
		})
	}
}

func TestFailureCoercesPlainErrors(t *testing.T) {
	res := sessiongate.Failure(errors.New("upstream exploded"))

	assert.False(t, res.OK())
	assert.Equal(t, sessiongate.TextCodeProviderError, res.Err.TextCode)
}

func TestFailureKeepsRichErrors(t *testing.T) {
	res := sessiongate.Failure(sessiongate.ErrInvalidCredentials)

	assert.False(t, res.OK())
	assert.Equal(t, sessiongate.TextCodeInvalidCreds, res.Err.TextCode)
}

func TestSuccessAndPendingResults(t *testing.T) {
	user := sessiongate.UserSummary{ID: "u1", Email: "a@b.co"}

	ok := sessiongate.Success("tok", user)
	assert.True(t, ok.OK())
	assert.False(t, ok.Pending)
	assert.Equal(t, "tok", ok.Token)

	pending := sessiongate.PendingResult(user)
	assert.True(t, pending.OK())
	assert.True(t, pending.Pending)
	assert.Empty(t, pending.Token)
}
