package rawg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://api.rawg.io/api"

// ErrNotFound is returned for an unknown slug.
var ErrNotFound = errors.New("game not found")

type APIError struct {
	StatusCode int
	Detail     string `json:"detail"`
	ErrorText  string `json:"error"`
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.ErrorText
	}
	return fmt.Sprintf("rawg: status %d: %s", e.StatusCode, msg)
}

type Client interface {
	ListGames(ctx context.Context, params ListParams) (*GamesPage, error)
	GetGame(ctx context.Context, slug string) (*GameDetails, error)
	GetScreenshots(ctx context.Context, slug string) ([]Screenshot, error)
}

var _ Client = (*client)(nil)

type client struct {
	http   *resty.Client
	apiKey string
}

func NewClient(httpClient *resty.Client, apiKey string) Client {
	return &client{
		http:   httpClient,
		apiKey: apiKey,
	}
}

// NewHTTPClient builds the resty client used against baseURL.
func NewHTTPClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(300*time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "fireplay-backend")
}

func (c *client) ListGames(ctx context.Context, params ListParams) (*GamesPage, error) {
	query := map[string]string{
		"key":       c.apiKey,
		"page":      strconv.Itoa(params.Page),
		"page_size": strconv.Itoa(params.PageSize),
	}
	// Blank filters are omitted, RAWG treats an empty value as a filter.
	if s := strings.TrimSpace(params.Search); s != "" {
		query["search"] = s
	}
	if g := strings.TrimSpace(params.Genres); g != "" {
		query["genres"] = g
	}
	if p := strings.TrimSpace(params.Platforms); p != "" {
		query["platforms"] = p
	}
	if o := strings.TrimSpace(params.Ordering); o != "" {
		query["ordering"] = o
	}

	result := &GamesPage{}
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(result).
		SetError(apiErr).
		Get("/games")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return nil, apiErr
	}
	return result, nil
}

func (c *client) GetGame(ctx context.Context, slug string) (*GameDetails, error) {
	result := &GameDetails{}
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("slug", slug).
		SetQueryParam("key", c.apiKey).
		SetResult(result).
		SetError(apiErr).
		Get("/games/{slug}")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return nil, apiErr
	}
	return result, nil
}

func (c *client) GetScreenshots(ctx context.Context, slug string) ([]Screenshot, error) {
	result := &screenshotsPage{}
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("slug", slug).
		SetQueryParam("key", c.apiKey).
		SetResult(result).
		SetError(apiErr).
		Get("/games/{slug}/screenshots")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return nil, apiErr
	}
	return result.Results, nil
}
