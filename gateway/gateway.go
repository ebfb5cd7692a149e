// Package gateway exposes the HTTP surface of the auth service: login,
// register, logout, profile, and status routes, with the tokenguard
// middleware enforcing bearer-token validity on the protected ones.
package gateway

import (
	"context"

	"github.com/fieldware/sessiongate"
	"github.com/fieldware/sessiongate/middleware/tokenguard"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// TokenInvalidator is the slice of the principal cache the controller needs
// on logout; nil means no cache is wired.
type TokenInvalidator interface {
	Invalidate(ctx context.Context, token string)
}

type ControllerRoutes struct {
	Login    string
	Register string
	Logout   string
	Profile  string
	Status   string
}

type Controller struct {
	Provider sessiongate.IdentityProvider
	Profiles sessiongate.ProfileStore
	Cache    TokenInvalidator
	Routes   *ControllerRoutes
	Logger   sessiongate.Logger
}

type ControllerOption func(*Controller) *Controller

func WithLogger(logger sessiongate.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithCache(cache TokenInvalidator) ControllerOption {
	return func(c *Controller) *Controller {
		c.Cache = cache
		return c
	}
}

func WithRoutes(routes *ControllerRoutes) ControllerOption {
	return func(c *Controller) *Controller {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewController(provider sessiongate.IdentityProvider, profiles sessiongate.ProfileStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		Provider: provider,
		Profiles: profiles,
		Logger:   sessiongate.DefaultLogger(),
		Routes: &ControllerRoutes{
			Login:    "/auth/login",
			Register: "/auth/register",
			Logout:   "/auth/logout",
			Profile:  "/user/profile",
			Status:   "/status",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in gateway controller...")
	}

	if c.Profiles == nil {
		panic("Missing ProfileStore in gateway controller...")
	}

	return c
}

// RegisterRoutes mounts the controller. The guard handler is applied to the
// logout and profile routes only; login, register, and status stay open.
func RegisterRoutes(app fiber.Router, c *Controller, guard fiber.Handler) {
	app.Post(c.Routes.Login, c.LoginPost)
	app.Post(c.Routes.Register, c.RegisterPost)
	app.Post(c.Routes.Logout, guard, c.LogoutPost)
	app.Get(c.Routes.Profile, guard, c.ProfileShow)
	app.Get(c.Routes.Status, c.StatusShow)
}

func (a *Controller) StatusShow(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (a *Controller) LoginPost(c *fiber.Ctx) error {
	payload := new(sessiongate.Credentials)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Email and password are required",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	}

	a.Logger.Info("login attempt email=%s", payload.Email)

	token, user, err := a.Provider.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Warn("login rejected email=%s error=%v", payload.Email, err)
		return a.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

func (a *Controller) RegisterPost(c *fiber.Ctx) error {
	payload := new(sessiongate.Credentials)

	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Email and password are required",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	}

	token, user, err := a.Provider.Register(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Warn("registration rejected email=%s error=%v", payload.Email, err)
		// Provider-side registration failures surface as 400 regardless of
		// flavor; the message string is the only detail that escapes.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": errorMessage(err),
		})
	}

	a.Logger.Info("user registered user_id=%s", user.ID)

	body := fiber.Map{
		"message": "Registration successful",
		"user":    user,
	}
	if token == "" {
		// Confirmation-pending flow: account exists, session does not.
		body["token"] = nil
	} else {
		body["token"] = token
	}

	return c.Status(fiber.StatusCreated).JSON(body)
}

func (a *Controller) LogoutPost(c *fiber.Ctx) error {
	principal, ok := tokenguard.PrincipalFromCtx(c, "")
	if !ok {
		return a.respondError(c, sessiongate.ErrMissingToken)
	}

	token, _ := tokenguard.TokenFromCtx(c, "")

	a.Logger.Info("logout requested user_id=%s", principal.ID)

	if err := a.Provider.Logout(c.UserContext(), token); err != nil {
		a.Logger.Error("provider logout failed user_id=%s error=%v", principal.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": errorMessage(err),
		})
	}

	if a.Cache != nil {
		a.Cache.Invalidate(c.UserContext(), token)
	}

	return c.JSON(fiber.Map{"message": "Logout successful"})
}

func (a *Controller) ProfileShow(c *fiber.Ctx) error {
	principal, ok := tokenguard.PrincipalFromCtx(c, "")
	if !ok {
		return a.respondError(c, sessiongate.ErrMissingToken)
	}

	profile, err := a.Profiles.GetByUserID(c.UserContext(), principal.ID)
	if err != nil {
		if sessiongate.IsProfileNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Profile not found.",
			})
		}
		a.Logger.Error("profile lookup failed user_id=%s error=%v", principal.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to fetch user profile.",
		})
	}

	return c.JSON(profile)
}

// respondError maps a rich error onto the narrowest correct HTTP status.
// Anything unclassified is a 500 with a generic message; provider internals
// never leak past the message string.
func (a *Controller) respondError(c *fiber.Ctx, err error) error {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := fiber.StatusInternalServerError
	switch rich.Category {
	case goerrors.CategoryAuth:
		status = fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		status = fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		status = fiber.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		status = fiber.StatusBadRequest
	case goerrors.CategoryConflict:
		status = fiber.StatusConflict
	case goerrors.CategoryOperation:
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(fiber.Map{
		"message": rich.Message,
	})
}

func errorMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Message
	}
	return "An unexpected server error occurred"
}
