package remoteidp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldware/sessiongate"
	"github.com/fieldware/sessiongate/provider/remoteidp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idpServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestLoginSuccess(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "pepe@rone.mx", payload["email"])

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok-1",
			"user": map[string]any{
				"id":            "u1",
				"email":         "pepe@rone.mx",
				"user_metadata": map[string]any{"name": "Pepe"},
			},
		})
	})

	client := remoteidp.New(srv.URL)

	token, user, err := client.Login(context.Background(), "pepe@rone.mx", "secret99")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, sessiongate.UserSummary{ID: "u1", Email: "pepe@rone.mx", Name: "Pepe"}, user)
}

func TestLoginBadCredentialsKeepsProviderMessage(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error_description": "Invalid login credentials",
		})
	})

	client := remoteidp.New(srv.URL)

	_, _, err := client.Login(context.Background(), "pepe@rone.mx", "wrong")
	assert.True(t, sessiongate.IsInvalidCredentials(err))
	assert.Contains(t, err.Error(), "Invalid login credentials")
}

func TestLoginTransportFailure(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	client := remoteidp.New(url)

	_, _, err := client.Login(context.Background(), "pepe@rone.mx", "secret99")
	assert.True(t, sessiongate.IsNetworkError(err))
}

func TestLoginWithoutBaseURLFailsFast(t *testing.T) {
	client := remoteidp.New("")

	_, _, err := client.Login(context.Background(), "pepe@rone.mx", "secret99")
	assert.True(t, sessiongate.IsConfigError(err))
}

func TestRegisterImmediateSession(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/signup", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok-2",
			"user":         map[string]any{"id": "u2", "email": "new@rone.mx"},
		})
	})

	client := remoteidp.New(srv.URL)

	token, user, err := client.Register(context.Background(), "new@rone.mx", "secret99")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, "u2", user.ID)
}

func TestRegisterConfirmationPending(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Confirmation-required projects return the bare user, no token.
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    "u2",
			"email": "new@rone.mx",
		})
	})

	client := remoteidp.New(srv.URL)

	token, user, err := client.Register(context.Background(), "new@rone.mx", "secret99")
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, "u2", user.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"msg": "User already registered",
		})
	})

	client := remoteidp.New(srv.URL)

	_, _, err := client.Register(context.Background(), "dup@rone.mx", "secret99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User already registered")
}

func TestValidateSuccess(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    "u1",
			"email": "pepe@rone.mx",
		})
	})

	client := remoteidp.New(srv.URL)

	user, err := client.Validate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestValidateRejected(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "JWT expired"})
	})

	client := remoteidp.New(srv.URL)

	_, err := client.Validate(context.Background(), "stale")
	assert.True(t, sessiongate.IsInvalidToken(err))
}

func TestLogoutSuccess(t *testing.T) {
	var gotAuth string
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/logout", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	client := remoteidp.New(srv.URL)

	require.NoError(t, client.Logout(context.Background(), "tok-1"))
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestLogoutToleratesDeadToken(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "JWT expired"})
	})

	client := remoteidp.New(srv.URL)

	assert.NoError(t, client.Logout(context.Background(), "stale"))
}

func TestLogoutProviderFault(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"msg": "boom"})
	})

	client := remoteidp.New(srv.URL)

	err := client.Logout(context.Background(), "tok-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAPIKeyHeader(t *testing.T) {
	srv := idpServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "project-key", r.Header.Get("apikey"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "email": "pepe@rone.mx"})
	})

	client := remoteidp.New(srv.URL, remoteidp.WithAPIKey("project-key"))

	_, err := client.Validate(context.Background(), "tok-1")
	require.NoError(t, err)
}
