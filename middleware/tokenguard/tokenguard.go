// Package tokenguard is the gateway middleware that authenticates requests:
// it extracts the bearer token, validates it against the identity provider,
// and injects the resulting Principal into the request before the protected
// handler runs. It holds no state of its own; every request is independent.
package tokenguard

import (
	"context"
	"strings"

	"github.com/fieldware/sessiongate"
	"github.com/gofiber/fiber/v2"
)

var defaultTokenLookup = "header:" + fiber.HeaderAuthorization

const (
	// DefaultContextKey is where the Principal lands in fiber locals.
	DefaultContextKey = "principal"
	// DefaultTokenKey is where the raw bearer token lands in fiber locals,
	// so handlers that talk back to the provider (logout) can reuse it.
	DefaultTokenKey = "auth_token"
)

type Config struct {
	// Provider validates opaque tokens against the identity provider.
	Provider sessiongate.IdentityProvider

	// Cache optionally memoizes token validations (see Cache). Lookups that
	// fail degrade to a Provider call, never to a request failure.
	Cache *Cache

	// JWKSetURLs optionally enable local validation of provider-issued JWTs
	// before falling back to the Provider. Tokens that are not parseable
	// JWTs still go through the Provider, so opaque tokens keep working.
	JWKSetURLs []string

	// Filter skips the guard when it returns true.
	Filter func(*fiber.Ctx) bool

	SuccessHandler fiber.Handler
	ErrorHandler   func(*fiber.Ctx, error) error

	ContextKey  string
	TokenKey    string
	AuthScheme  string
	TokenLookup string

	Logger sessiongate.Logger
}

// New returns the guard handler. Missing or malformed Authorization data is
// a 401; a token the provider rejects is a 403; neither reaches the next
// handler.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)
	extractors := getExtractors(cfg.TokenLookup, cfg.AuthScheme)

	var local *jwksValidator
	if len(cfg.JWKSetURLs) > 0 {
		var err error
		local, err = newJWKSValidator(cfg.JWKSetURLs)
		if err != nil {
			panic("tokenguard: failed to create keyfunc from JWK Set URL: " + err.Error())
		}
	}

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := extractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, sessiongate.ErrMissingToken)
		}

		principal, err := cfg.resolve(c.UserContext(), local, raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, principal)
		c.Locals(cfg.TokenKey, raw)
		c.SetUserContext(sessiongate.WithPrincipal(c.UserContext(), principal))

		return cfg.SuccessHandler(c)
	}
}

// resolve turns a raw token into a Principal: cache first, then local JWKS
// validation, then the provider.
func (cfg *Config) resolve(ctx context.Context, local *jwksValidator, raw string) (sessiongate.Principal, error) {
	if cfg.Cache != nil {
		if principal, ok := cfg.Cache.Get(ctx, raw); ok {
			return principal, nil
		}
	}

	var user sessiongate.UserSummary
	var err error

	validated := false
	if local != nil {
		user, err = local.Validate(raw)
		switch {
		case err == nil:
			validated = true
		case isNotLocalToken(err):
			// Not a JWT this key set can speak for; let the provider decide.
		default:
			return sessiongate.Principal{}, err
		}
	}

	if !validated {
		user, err = cfg.Provider.Validate(ctx, raw)
		if err != nil {
			if sessiongate.IsNetworkError(err) {
				cfg.Logger.Warn("token validation transport failure: %v", err)
			}
			return sessiongate.Principal{}, sessiongate.ErrInvalidToken
		}
	}

	principal := sessiongate.Principal{ID: user.ID, Email: user.Email}

	if cfg.Cache != nil {
		cfg.Cache.Set(ctx, raw, principal)
	}

	return principal, nil
}

// PrincipalFromCtx extracts the Principal the guard stored in fiber locals.
func PrincipalFromCtx(c *fiber.Ctx, key string) (sessiongate.Principal, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw := c.Locals(key)
	if raw == nil {
		return sessiongate.Principal{}, false
	}
	principal, ok := raw.(sessiongate.Principal)
	return principal, ok
}

// TokenFromCtx extracts the raw bearer token the guard stored in fiber locals.
func TokenFromCtx(c *fiber.Ctx, key string) (string, bool) {
	if key == "" {
		key = DefaultTokenKey
	}
	raw := c.Locals(key)
	if raw == nil {
		return "", false
	}
	token, ok := raw.(string)
	return token, ok && token != ""
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Provider == nil {
		panic("tokenguard: middleware configuration requires an IdentityProvider")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenKey == "" {
		cfg.TokenKey = DefaultTokenKey
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.Logger == nil {
		cfg.Logger = sessiongate.DefaultLogger()
	}

	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	if sessiongate.IsMissingToken(err) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authentication token required.",
		})
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"message": "Invalid token.",
	})
}

type extractor func(c *fiber.Ctx) (string, error)

func extractRawToken(c *fiber.Ctx, extractors []extractor) (string, error) {
	var raw string
	var err error

	for _, ex := range extractors {
		raw, err = ex(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

// getExtractors parses a lookup expression like
// "header:Authorization,query:auth_token,cookie:session" into a chain.
func getExtractors(tokenLookup, authScheme string) []extractor {
	extractors := make([]extractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, tokenFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(parts[1]))
		}
	}

	return extractors
}

// tokenFromHeader returns an extractor for the "<scheme> <token>" form.
func tokenFromHeader(header, authScheme string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		scheme := strings.TrimSpace(authScheme)
		l := len(scheme)
		if l == 0 {
			return "", sessiongate.ErrMissingToken
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], scheme) {
			token := strings.TrimSpace(a[l:])
			if token != "" {
				return token, nil
			}
		}
		return "", sessiongate.ErrMissingToken
	}
}

func tokenFromQuery(param string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", sessiongate.ErrMissingToken
		}
		return token, nil
	}
}

func tokenFromCookie(name string) extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", sessiongate.ErrMissingToken
		}
		return token, nil
	}
}
