// Package identity talks to the Firebase Identity Toolkit and Secure Token
// REST APIs for email/password accounts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"
)

type Client interface {
	SignUp(ctx context.Context, email, password string) (*AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*AuthResponse, error)
	UpdateProfile(ctx context.Context, idToken, displayName string) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
}

// AuthResponse is the normalized result of every call.
type AuthResponse struct {
	UserID       string
	Email        string
	DisplayName  string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

type AuthError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (a *AuthError) Error() string {
	return fmt.Sprintf("identity: %d: %s", a.StatusCode, a.Message)
}

// Credentials reports whether the provider rejected the supplied credentials,
// as opposed to failing.
func (a *AuthError) Credentials() bool {
	// Messages may carry a detail suffix, e.g. "WEAK_PASSWORD : Password should be ...".
	code, _, _ := strings.Cut(a.Message, " ")
	switch code {
	case "EMAIL_EXISTS", "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS",
		"USER_DISABLED", "WEAK_PASSWORD", "INVALID_EMAIL":
		return true
	}
	return false
}

// IsCredentials reports whether err is an AuthError for rejected credentials.
func IsCredentials(err error) bool {
	var a *AuthError
	return errors.As(err, &a) && a.Credentials()
}

type errorEnvelope struct {
	Error AuthError `json:"error"`
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type tokenResponse struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

var _ Client = (*client)(nil)

type client struct {
	http        *resty.Client
	apiKey      string
	identityURL string
	tokenURL    string
}

type Option func(*client)

func WithIdentityURL(u string) Option {
	return func(c *client) { c.identityURL = u }
}

func WithTokenURL(u string) Option {
	return func(c *client) { c.tokenURL = u }
}

func NewClient(httpClient *resty.Client, apiKey string, opts ...Option) Client {
	c := &client{
		http:        httpClient,
		apiKey:      apiKey,
		identityURL: DefaultIdentityURL,
		tokenURL:    DefaultTokenURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) SignUp(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.account(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

func (c *client) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.account(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

func (c *client) UpdateProfile(ctx context.Context, idToken, displayName string) (*AuthResponse, error) {
	return c.account(ctx, "accounts:update", map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": true,
	})
}

func (c *client) account(ctx context.Context, method string, body map[string]any) (*AuthResponse, error) {
	response := &accountResponse{}
	responseError := &errorEnvelope{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(response).
		SetError(responseError).
		Post(c.identityURL + "/" + method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.IsError() {
		responseError.Error.StatusCode = resp.StatusCode()
		return nil, &responseError.Error
	}
	return &AuthResponse{
		UserID:       response.LocalID,
		Email:        response.Email,
		DisplayName:  response.DisplayName,
		IDToken:      response.IDToken,
		RefreshToken: response.RefreshToken,
		ExpiresIn:    seconds(response.ExpiresIn),
	}, nil
}

func (c *client) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	response := &tokenResponse{}
	responseError := &errorEnvelope{}
	values := url.Values{
		"grant_type":    []string{"refresh_token"},
		"refresh_token": []string{refreshToken},
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetFormDataFromValues(values).
		SetResult(response).
		SetError(responseError).
		Post(c.tokenURL + "/token")
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if resp.IsError() {
		responseError.Error.StatusCode = resp.StatusCode()
		return nil, &responseError.Error
	}
	return &AuthResponse{
		UserID:       response.UserID,
		IDToken:      response.IDToken,
		RefreshToken: response.RefreshToken,
		ExpiresIn:    seconds(response.ExpiresIn),
	}, nil
}

func seconds(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Second
}
