package client

// Redirect is a navigation decision for the app shell.
type Redirect string

const (
	// RedirectNone means stay where you are. Also the answer while the
	// machine is still loading: never bounce the user off a half-resolved
	// state.
	RedirectNone Redirect = ""

	RedirectToSignIn Redirect = "/sign-in"
	RedirectToHome   Redirect = "/"
)

// DecideRedirect maps the auth state and current location onto a navigation
// decision: signed-out users belong in the sign-in area, signed-in users
// belong out of it. Pure function of its inputs.
func DecideRedirect(state State, inSignInArea bool) Redirect {
	if state == StateLoading {
		return RedirectNone
	}

	authenticated := state == StateAuthenticated

	if !authenticated && !inSignInArea {
		return RedirectToSignIn
	}

	if authenticated && inSignInArea {
		return RedirectToHome
	}

	return RedirectNone
}
