package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldware/sessiongate"
	"github.com/fieldware/sessiongate/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatewayStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestAPILogin(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "secret99", payload["password"])

		respond(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"token":   "tok-1",
			"user":    map[string]string{"id": "u1", "email": "pepe@rone.mx"},
		})
	})

	api := client.NewAPI(srv.URL)

	token, user, err := api.Login(context.Background(), "pepe@rone.mx", "secret99")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "u1", user.ID)
}

func TestAPILoginRejected(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnauthorized, map[string]string{
			"message": "the credentials provided are invalid",
		})
	})

	api := client.NewAPI(srv.URL)

	_, _, err := api.Login(context.Background(), "pepe@rone.mx", "wrong")
	assert.True(t, sessiongate.IsInvalidCredentials(err))
	assert.Contains(t, err.Error(), "the credentials provided are invalid")
}

func TestAPILoginWithoutEndpoint(t *testing.T) {
	api := client.NewAPI("")

	_, _, err := api.Login(context.Background(), "pepe@rone.mx", "secret99")
	assert.True(t, sessiongate.IsConfigError(err))
}

func TestAPILoginTransportFailure(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	api := client.NewAPI(url)

	_, _, err := api.Login(context.Background(), "pepe@rone.mx", "secret99")
	assert.True(t, sessiongate.IsNetworkError(err))
}

func TestAPIRegisterWithToken(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/register", r.URL.Path)
		respond(w, http.StatusCreated, map[string]any{
			"message": "Registration successful",
			"token":   "tok-2",
			"user":    map[string]string{"id": "u2", "email": "new@rone.mx"},
		})
	})

	api := client.NewAPI(srv.URL)

	token, user, err := api.Register(context.Background(), "new@rone.mx", "secret99")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, "u2", user.ID)
}

func TestAPIRegisterNullToken(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusCreated, map[string]any{
			"message": "Registration successful",
			"token":   nil,
			"user":    map[string]string{"id": "u2", "email": "new@rone.mx"},
		})
	})

	api := client.NewAPI(srv.URL)

	token, user, err := api.Register(context.Background(), "new@rone.mx", "secret99")
	require.NoError(t, err)
	assert.Empty(t, token, "a null token is the pending signal, not a failure")
	assert.Equal(t, "u2", user.ID)
}

func TestAPIValidateBuildsSummaryFromProfile(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/profile", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		respond(w, http.StatusOK, map[string]string{
			"id":    "u1",
			"email": "pepe@rone.mx",
			"name":  "Pepe",
			"bio":   "plumber",
		})
	})

	api := client.NewAPI(srv.URL)

	user, err := api.Validate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, sessiongate.UserSummary{ID: "u1", Email: "pepe@rone.mx", Name: "Pepe"}, user)
}

func TestAPIValidateRejected(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusForbidden, map[string]string{"message": "Invalid token."})
	})

	api := client.NewAPI(srv.URL)

	_, err := api.Validate(context.Background(), "stale")
	assert.True(t, sessiongate.IsInvalidToken(err))
}

func TestAPILogout(t *testing.T) {
	var gotAuth string
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/logout", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		respond(w, http.StatusOK, map[string]string{"message": "Logout successful"})
	})

	api := client.NewAPI(srv.URL)

	require.NoError(t, api.Logout(context.Background(), "tok-1"))
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestAPILogoutToleratesRejectedToken(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusForbidden, map[string]string{"message": "Invalid token."})
	})

	api := client.NewAPI(srv.URL)

	assert.NoError(t, api.Logout(context.Background(), "stale"))
}

// The API client is a drop-in provider for the state machine, so the whole
// client stack can run against a stub gateway.
func TestStateMachineOverAPI(t *testing.T) {
	srv := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			respond(w, http.StatusOK, map[string]any{
				"token": "tok-1",
				"user":  map[string]string{"id": "u1", "email": "pepe@rone.mx"},
			})
		case "/user/profile":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				respond(w, http.StatusForbidden, map[string]string{"message": "Invalid token."})
				return
			}
			respond(w, http.StatusOK, map[string]string{"id": "u1", "email": "pepe@rone.mx"})
		case "/auth/logout":
			respond(w, http.StatusOK, map[string]string{"message": "Logout successful"})
		default:
			respond(w, http.StatusNotFound, map[string]string{"message": "not found"})
		}
	})

	store := client.NewMemoryStore()
	m := client.NewStateMachine(client.NewAPI(srv.URL), store)

	m.Restore(context.Background())
	assert.Equal(t, client.StateUnauthenticated, m.State())

	res := m.SignIn(context.Background(), "pepe@rone.mx", "secret99")
	require.True(t, res.OK())
	assert.Equal(t, client.StateAuthenticated, m.State())

	m2 := client.NewStateMachine(client.NewAPI(srv.URL), store)
	res2 := m2.Restore(context.Background())
	require.True(t, res2.OK())
	assert.Equal(t, client.StateAuthenticated, m2.State())

	out := m2.SignOut(context.Background())
	assert.True(t, out.OK())
	assert.Equal(t, client.StateUnauthenticated, m2.State())
}
