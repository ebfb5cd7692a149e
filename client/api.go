package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldware/sessiongate"
	goerrors "github.com/goliatone/go-errors"
)

const defaultTimeout = time.Second * 15

// API talks to the auth gateway's HTTP surface and satisfies
// sessiongate.IdentityProvider, so the state machine does not care whether it
// is wired to the gateway or straight to a provider.
type API struct {
	baseURL string
	http    *http.Client
	logger  sessiongate.Logger
}

type APIOption func(*API)

func WithHTTPClient(hc *http.Client) APIOption {
	return func(a *API) {
		if hc != nil {
			a.http = hc
		}
	}
}

func WithAPILogger(logger sessiongate.Logger) APIOption {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAPI(baseURL string, opts ...APIOption) *API {
	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  sessiongate.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

type authResponse struct {
	Message string                  `json:"message"`
	Token   *string                 `json:"token"`
	User    sessiongate.UserSummary `json:"user"`
}

func (a *API) Login(ctx context.Context, email, password string) (string, sessiongate.UserSummary, error) {
	if a.baseURL == "" {
		return "", sessiongate.UserSummary{}, sessiongate.ErrMissingEndpoint
	}

	resp, raw, err := a.postJSON(ctx, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", sessiongate.UserSummary{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return "", sessiongate.UserSummary{}, classifyRejection(resp.StatusCode, raw, sessiongate.ErrInvalidCredentials)
	}

	var ar authResponse
	if err := json.Unmarshal(raw, &ar); err != nil || ar.Token == nil || *ar.Token == "" {
		return "", sessiongate.UserSummary{}, unreadableResponse()
	}

	return *ar.Token, ar.User, nil
}

func (a *API) Register(ctx context.Context, email, password string) (string, sessiongate.UserSummary, error) {
	if a.baseURL == "" {
		return "", sessiongate.UserSummary{}, sessiongate.ErrMissingEndpoint
	}

	resp, raw, err := a.postJSON(ctx, "/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", sessiongate.UserSummary{}, err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", sessiongate.UserSummary{}, classifyRejection(resp.StatusCode, raw, sessiongate.ErrProvider)
	}

	var ar authResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return "", sessiongate.UserSummary{}, unreadableResponse()
	}

	// A null token is the confirmation-pending signal, not a fault.
	if ar.Token == nil {
		return "", ar.User, nil
	}

	return *ar.Token, ar.User, nil
}

func (a *API) Validate(ctx context.Context, token string) (sessiongate.UserSummary, error) {
	if a.baseURL == "" {
		return sessiongate.UserSummary{}, sessiongate.ErrMissingEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/user/profile", nil)
	if err != nil {
		return sessiongate.UserSummary{}, wrapTransport(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, raw, err := a.do(req)
	if err != nil {
		return sessiongate.UserSummary{}, err
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return sessiongate.UserSummary{}, sessiongate.ErrInvalidToken
		}
		return sessiongate.UserSummary{}, classifyRejection(resp.StatusCode, raw, sessiongate.ErrProvider)
	}

	var record struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(raw, &record); err != nil || record.ID == "" {
		return sessiongate.UserSummary{}, unreadableResponse()
	}

	return sessiongate.UserSummary{
		ID:    record.ID,
		Email: record.Email,
		Name:  record.Name,
	}, nil
}

func (a *API) Logout(ctx context.Context, token string) error {
	if a.baseURL == "" {
		return sessiongate.ErrMissingEndpoint
	}

	resp, raw, err := a.postJSON(ctx, "/auth/logout", token, nil)
	if err != nil {
		return err
	}

	// A token the gateway no longer recognizes is already logged out.
	if resp.StatusCode >= 500 {
		return classifyRejection(resp.StatusCode, raw, sessiongate.ErrProvider)
	}

	return nil
}

func (a *API) postJSON(ctx context.Context, path, token string, body any) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, reader)
	if err != nil {
		return nil, nil, wrapTransport(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return a.do(req)
}

func (a *API) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := a.http.Do(req)
	if err != nil {
		a.logger.Warn("gateway transport failure: %v", err)
		return nil, nil, wrapTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, wrapTransport(err)
	}

	return resp, raw, nil
}

// classifyRejection keeps the gateway's message but classifies by status, so
// the caller can branch without string matching.
func classifyRejection(status int, raw []byte, fallback *goerrors.Error) error {
	msg := fallback.Message

	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		msg = body.Message
	}

	switch status {
	case http.StatusUnauthorized:
		return goerrors.New(msg, goerrors.CategoryAuth).
			WithTextCode(sessiongate.TextCodeInvalidCreds).
			WithCode(goerrors.CodeUnauthorized)
	case http.StatusForbidden:
		return goerrors.New(msg, goerrors.CategoryAuthz).
			WithTextCode(sessiongate.TextCodeInvalidToken).
			WithCode(goerrors.CodeForbidden)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return goerrors.New(msg, goerrors.CategoryBadInput).
			WithTextCode(sessiongate.TextCodeProviderError).
			WithCode(goerrors.CodeBadRequest)
	}

	return goerrors.New(msg, fallback.Category).
		WithTextCode(fallback.TextCode).
		WithCode(fallback.Code)
}

func unreadableResponse() error {
	return goerrors.New("gateway returned an unreadable response", goerrors.CategoryInternal).
		WithTextCode(sessiongate.TextCodeProviderError).
		WithCode(goerrors.CodeInternal)
}

func wrapTransport(err error) error {
	return goerrors.Wrap(err, sessiongate.ErrNetwork.Category, sessiongate.ErrNetwork.Message).
		WithTextCode(sessiongate.TextCodeNetworkError)
}
