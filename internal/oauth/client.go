package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"deskauth/pkg/auth"
)

const (
	// DefaultRequestTimeout bounds every call made by the client.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultScope is requested when no scopes are configured.
	DefaultScope = "profile"

	authorizePath  = "/oauth2/authorize"
	tokenPath      = "/oauth2/token"
	userInfoPath   = "/oauth2/userinfo"
	introspectPath = "/oauth2/introspect"
	healthPath     = "/health"
	usagePath      = "/usage"

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20
)

// TokenResponse holds the tokens issued for an authorization code.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
}

// Client performs the stateless protocol calls against the identity provider
// and the backend API that shares its base URL.
type Client struct {
	baseURL        string
	clientID       string
	scopes         []string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *slog.Logger
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithScopes sets the scopes requested in the authorization URL.
// An empty list keeps DefaultScope.
func WithScopes(scopes ...string) ClientOption {
	return func(c *Client) {
		if len(scopes) > 0 {
			c.scopes = scopes
		}
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// NewClient creates a client for the provider rooted at baseURL.
func NewClient(baseURL, clientID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		clientID:       clientID,
		scopes:         []string{DefaultScope},
		httpClient:     &http.Client{},
		requestTimeout: DefaultRequestTimeout,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the provider base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.baseURL + authorizePath,
			TokenURL:  c.baseURL + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      c.scopes,
	}
}

// BuildAuthorizationURL returns the URL of the provider's authorization page
// for a code flow that redirects to redirectURI.
func BuildAuthorizationURL(baseURL, clientID, redirectURI, state string, scopes ...string) string {
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	return NewClient(baseURL, clientID, WithScopes(scopes...)).AuthorizationURL(redirectURI, state)
}

// AuthorizationURL returns the authorization page URL for this client.
func (c *Client) AuthorizationURL(redirectURI, state string) string {
	return c.config(redirectURI).AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			exchangeErr := &TokenExchangeError{
				ErrorCode:   retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
				Err:         err,
			}
			if retrieveErr.Response != nil {
				exchangeErr.StatusCode = retrieveErr.Response.StatusCode
			}
			if exchangeErr.ErrorCode == "" && exchangeErr.Description == "" && len(retrieveErr.Body) > 0 {
				exchangeErr.Description = strings.TrimSpace(string(retrieveErr.Body))
			}
			c.logger.Debug("Token exchange rejected",
				"status", exchangeErr.StatusCode,
				"error", exchangeErr.ErrorCode)
			return nil, exchangeErr
		}

		if isTransportError(err) {
			return nil, classifyTransportError("token exchange", err)
		}
		return nil, &TokenExchangeError{Err: err}
	}

	resp := &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	c.logger.Debug("Token exchange succeeded", "tokens", *resp)
	return resp, nil
}

// providerUserInfo is the userinfo payload; either sub or id identifies the user.
type providerUserInfo struct {
	ID         string `json:"id"`
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

func (u providerUserInfo) profile() *auth.UserProfile {
	id := u.ID
	if id == "" {
		id = u.Sub
	}
	return &auth.UserProfile{
		ID:         id,
		Name:       u.Name,
		Email:      u.Email,
		FirstName:  u.GivenName,
		LastName:   u.FamilyName,
		PictureURL: u.Picture,
	}
}

// FetchUserInfo returns the profile of the token's owner.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (*auth.UserProfile, error) {
	resp, body, err := c.do(ctx, "user info", http.MethodGet, userInfoPath, accessToken, nil)
	if err != nil {
		if IsNetworkError(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &UserInfoError{Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &UserInfoError{StatusCode: resp.StatusCode}
	}

	var info providerUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &UserInfoError{Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return info.profile(), nil
}

// Introspect reports whether token is currently active.
func (c *Client) Introspect(ctx context.Context, token string) (bool, error) {
	form := url.Values{"token": {token}}
	resp, body, err := c.do(ctx, "token introspection", http.MethodPost, introspectPath, "", form)
	if err != nil {
		if IsNetworkError(err) || errors.Is(err, context.Canceled) {
			return false, err
		}
		return false, &IntrospectionError{Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return false, &IntrospectionError{StatusCode: resp.StatusCode}
	}

	var result struct {
		Active bool `json:"active"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, &IntrospectionError{Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return result.Active, nil
}

// Health probes the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, _, err := c.do(ctx, "health", http.MethodGet, healthPath, "", nil)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return &StatusError{Op: "health", StatusCode: resp.StatusCode}
	}
	return nil
}

// Usage returns the remaining quota of the token's owner.
func (c *Client) Usage(ctx context.Context, accessToken string) (*auth.UsageInfo, error) {
	resp, body, err := c.do(ctx, "usage", http.MethodGet, usagePath, accessToken, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &StatusError{Op: "usage", StatusCode: resp.StatusCode}
	}

	var payload struct {
		RequestsRemaining int `json:"requests_remaining"`
		MonthlyAPICalls   int `json:"monthly_api_calls"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("usage: %w: %v", ErrMalformedResponse, err)
	}

	return &auth.UsageInfo{
		RequestsRemaining: payload.RequestsRemaining,
		TotalRequests:     payload.MonthlyAPICalls,
	}, nil
}

// do performs one bounded request. A bearer token is attached when set, and
// form is sent url-encoded when non-nil.
func (c *Client) do(ctx context.Context, op, method, path, bearer string, form url.Values) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, classifyTransportError(op, err)
	}

	if !isSuccess(resp.StatusCode) {
		c.logger.Debug("Backend request failed",
			"op", op,
			"status", resp.StatusCode)
	}

	return resp, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// isTransportError reports whether err came from the round trip rather than
// from the provider's answer.
func isTransportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
