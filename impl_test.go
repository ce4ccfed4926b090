package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"fireplay/api"
	"fireplay/clients/identity"
	"fireplay/clients/kv"
	"fireplay/clients/rawg"
	"fireplay/device"
	"fireplay/routes"
	"fireplay/services/catalog"
	"fireplay/services/contact"
	"fireplay/services/favorites"
	"fireplay/validator"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCatalog struct {
	games map[string]*rawg.GameDetails
}

func (f fakeCatalog) ListGames(_ context.Context, _ rawg.ListParams) (*rawg.GamesPage, error) {
	page := &rawg.GamesPage{}
	for _, g := range f.games {
		page.Results = append(page.Results, g.Game)
	}
	sort.Slice(page.Results, func(i, j int) bool { return page.Results[i].ID < page.Results[j].ID })
	page.Count = int64(len(page.Results))
	return page, nil
}

func (f fakeCatalog) GetGame(_ context.Context, slug string) (*rawg.GameDetails, error) {
	g, ok := f.games[slug]
	if !ok {
		return nil, rawg.ErrNotFound
	}
	return g, nil
}

func (f fakeCatalog) GetScreenshots(context.Context, string) ([]rawg.Screenshot, error) {
	return nil, errors.New("unavailable")
}

type fakeProvider struct{}

func (fakeProvider) SignUp(_ context.Context, email, _ string) (*identity.AuthResponse, error) {
	if email == "taken@example.com" {
		return nil, &identity.AuthError{StatusCode: http.StatusBadRequest, Message: "EMAIL_EXISTS"}
	}
	return &identity.AuthResponse{UserID: "uid-new", Email: email, IDToken: "t", RefreshToken: "r", ExpiresIn: time.Hour}, nil
}

func (fakeProvider) SignIn(_ context.Context, email, password string) (*identity.AuthResponse, error) {
	if password != "secret123" {
		return nil, &identity.AuthError{StatusCode: http.StatusBadRequest, Message: "INVALID_LOGIN_CREDENTIALS"}
	}
	return &identity.AuthResponse{UserID: "uid-ana", Email: email, DisplayName: "Ana", IDToken: "t", RefreshToken: "r", ExpiresIn: time.Hour}, nil
}

func (fakeProvider) UpdateProfile(_ context.Context, _, name string) (*identity.AuthResponse, error) {
	return &identity.AuthResponse{DisplayName: name}, nil
}

func (fakeProvider) Refresh(context.Context, string) (*identity.AuthResponse, error) {
	return nil, errors.New("refresh disabled")
}

// memoryCollection is a favorites collection whose watchers see every write.
type memoryCollection struct {
	mu      sync.Mutex
	docs    map[string]map[int64]favorites.Item
	changed chan struct{}
}

func newMemoryCollection() *memoryCollection {
	return &memoryCollection{docs: map[string]map[int64]favorites.Item{}, changed: make(chan struct{})}
}

func (m *memoryCollection) touch() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *memoryCollection) Set(_ context.Context, uid string, item favorites.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[uid] == nil {
		m.docs[uid] = map[int64]favorites.Item{}
	}
	m.docs[uid][item.ID] = item
	m.touch()
	return nil
}

func (m *memoryCollection) Delete(_ context.Context, uid string, gameID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[uid], gameID)
	m.touch()
	return nil
}

func (m *memoryCollection) Watch(ctx context.Context, uid string, onSnapshot func([]favorites.Item)) error {
	for {
		m.mu.Lock()
		items := make([]favorites.Item, 0, len(m.docs[uid]))
		for _, item := range m.docs[uid] {
			items = append(items, item)
		}
		changed := m.changed
		m.mu.Unlock()

		sort.Slice(items, func(i, j int) bool { return items[i].AddedAt.After(items[j].AddedAt) })
		onSnapshot(items)

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	sent []contact.Message
}

func (f *fakeWriter) Create(_ context.Context, msg contact.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

type testClient struct {
	t    *testing.T
	url  string
	http *http.Client
}

func newTestServer(t *testing.T) (*testClient, *fakeWriter) {
	t.Helper()
	registry := device.NewRegistry(device.Config{}, kv.NewMemory(), fakeProvider{}, newMemoryCollection())
	t.Cleanup(registry.Close)

	writer := &fakeWriter{}
	server := NewServer(
		catalog.NewService(fakeCatalog{games: map[string]*rawg.GameDetails{
			"portal-2": {Game: rawg.Game{ID: 4200, Slug: "portal-2", Name: "Portal 2", Rating: 4.47, BackgroundImage: "p2.jpg"}},
			"unrated":  {Game: rawg.Game{ID: 7, Slug: "unrated", Name: "Unrated"}},
		}}),
		contact.NewService(writer),
		0.21,
	)
	swagger, err := api.GetSwagger()
	require.NoError(t, err)
	verifier := validator.NewVerifier("fireplay-test", validator.StaticKeys{Set: jwk.NewSet()})

	srv := httptest.NewServer(newRouter(server, registry, verifier, swagger))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{
		t:   t,
		url: srv.URL,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, writer
}

func (tc *testClient) do(method, path string, body any, out any) *http.Response {
	tc.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(tc.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, tc.url+path, reader)
	require.NoError(tc.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tc.http.Do(req)
	require.NoError(tc.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(tc.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (tc *testClient) login() {
	tc.t.Helper()
	var s api.Session
	resp := tc.do(http.MethodPost, "/login", api.Login{Email: "ana@example.com", Password: "secret123"}, &s)
	require.Equal(tc.t, http.StatusOK, resp.StatusCode)
	require.True(tc.t, s.Authenticated)
}

func TestPing(t *testing.T) {
	tc, _ := newTestServer(t)
	var pong api.Pong
	resp := tc.do(http.MethodGet, "/ping", nil, &pong)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", pong.Ping)
}

func TestListGamesIsPriced(t *testing.T) {
	tc, _ := newTestServer(t)
	var page api.GamesPage
	resp := tc.do(http.MethodGet, "/games?page=1&page_size=20", nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page.Results, 2)
	assert.Equal(t, 19.99, page.Results[0].Price)
	assert.Equal(t, 35.99, page.Results[1].Price)

	resp = tc.do(http.MethodGet, "/games?page_size=100", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGameDetailsAndScreenshots(t *testing.T) {
	tc, _ := newTestServer(t)

	var details api.GameDetails
	resp := tc.do(http.MethodGet, "/games/portal-2", nil, &details)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Portal 2", details.Name)

	var apiErr api.Error
	resp = tc.do(http.MethodGet, "/games/missing", nil, &apiErr)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var shots []rawg.Screenshot
	resp = tc.do(http.MethodGet, "/games/portal-2/screenshots", nil, &shots)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, shots)
}

func TestCartFlow(t *testing.T) {
	tc, _ := newTestServer(t)

	var cart api.Cart
	tc.do(http.MethodPost, "/cart/items", api.AddCartItem{Slug: "portal-2"}, &cart)
	resp := tc.do(http.MethodPost, "/cart/items", api.AddCartItem{Slug: "portal-2"}, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.InDelta(t, 71.98, cart.Subtotal, 1e-9)
	assert.InDelta(t, cart.Subtotal*0.21, cart.Tax, 1e-9)
	assert.InDelta(t, cart.Subtotal+cart.Tax, cart.Total, 1e-9)

	tc.do(http.MethodPut, "/cart/items/4200", api.SetQuantity{Quantity: 0}, &cart)
	assert.Equal(t, 2, cart.Count)

	tc.do(http.MethodPut, "/cart/items/4200", api.SetQuantity{Quantity: 5}, &cart)
	assert.Equal(t, 5, cart.Count)

	tc.do(http.MethodDelete, "/cart/items/4200", nil, &cart)
	assert.Empty(t, cart.Lines)
	resp = tc.do(http.MethodDelete, "/cart/items/4200", nil, &cart)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tc.do(http.MethodPost, "/cart/items", api.AddCartItem{Slug: "unrated"}, &cart)
	tc.do(http.MethodDelete, "/cart", nil, &cart)
	assert.Zero(t, cart.Total)

	var fresh api.Cart
	tc.do(http.MethodGet, "/cart", nil, &fresh)
	assert.Empty(t, fresh.Lines)
}

func TestCartRejectsMalformedRequests(t *testing.T) {
	tc, _ := newTestServer(t)

	resp := tc.do(http.MethodPost, "/cart/items", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tc.do(http.MethodDelete, "/cart/items/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tc.do(http.MethodPost, "/cart/items", api.AddCartItem{Slug: "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDevicesKeepSeparateCarts(t *testing.T) {
	tc, _ := newTestServer(t)
	tc.do(http.MethodPost, "/cart/items", api.AddCartItem{Slug: "portal-2"}, nil)

	other := *tc
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other.http = &http.Client{Jar: jar}

	var cart api.Cart
	other.do(http.MethodGet, "/cart", nil, &cart)
	assert.Empty(t, cart.Lines)
}

func TestProtectedRoutesRedirect(t *testing.T) {
	tc, _ := newTestServer(t)

	for _, path := range []string{"/dashboard", "/favorites", "/cart/checkout"} {
		resp := tc.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/login?redirect="), path)
	}
}

func TestLoginFlow(t *testing.T) {
	tc, _ := newTestServer(t)

	var apiErr api.Error
	resp := tc.do(http.MethodPost, "/login", api.Login{Email: "ana@example.com", Password: "nope"}, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tc.login()

	var dash api.Dashboard
	resp = tc.do(http.MethodGet, "/dashboard", nil, &dash)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "uid-ana", dash.User.UID)

	resp = tc.do(http.MethodPost, "/login", api.Login{Email: "ana@example.com", Password: "secret123"}, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	var s api.Session
	tc.do(http.MethodPost, "/logout", nil, &s)
	assert.False(t, s.Authenticated)

	resp = tc.do(http.MethodGet, "/dashboard", nil, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	tc, _ := newTestServer(t)

	var apiErr api.Error
	resp := tc.do(http.MethodPost, "/register", api.Register{Name: "Al", Email: "bad", Password: "123", ConfirmPassword: "456"}, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Len(t, apiErr.Fields, 4)

	resp = tc.do(http.MethodPost, "/register", api.Register{Name: "Taken", Email: "taken@example.com", Password: "secret123", ConfirmPassword: "secret123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var s api.Session
	resp = tc.do(http.MethodPost, "/register", api.Register{Name: "Grace", Email: "grace@example.com", Password: "secret123", ConfirmPassword: "secret123"}, &s)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, s.Authenticated)
	assert.Equal(t, "Grace", s.User.DisplayName)
}

func TestFavoritesToggle(t *testing.T) {
	tc, _ := newTestServer(t)
	tc.login()

	game := api.FavoriteGame{ID: 4200, Slug: "portal-2", Name: "Portal 2", Image: "p2.jpg"}

	var flip favorites.Flip
	resp := tc.do(http.MethodPost, "/favorites/toggle", game, &flip)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, flip.Favorite)
	assert.Equal(t, favorites.Confirmed, flip.Status)

	var favs api.Favorites
	tc.do(http.MethodGet, "/favorites", nil, &favs)
	require.Len(t, favs.Items, 1)
	assert.Equal(t, int64(4200), favs.Items[0].ID)

	tc.do(http.MethodPost, "/favorites/toggle", game, &flip)
	assert.False(t, flip.Favorite)

	// The live snapshot settles on the last write.
	listed := func(n int) func() bool {
		return func() bool {
			var got api.Favorites
			tc.do(http.MethodGet, "/favorites", nil, &got)
			return len(got.Items) == n
		}
	}
	assert.Eventually(t, listed(0), time.Second, 10*time.Millisecond)

	resp = tc.do(http.MethodPost, "/favorites", game, &favs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Eventually(t, listed(1), time.Second, 10*time.Millisecond)

	resp = tc.do(http.MethodDelete, "/favorites/4200", nil, &favs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Eventually(t, listed(0), time.Second, 10*time.Millisecond)
}

func TestFavoritesNeedSessionBehindStaleCookie(t *testing.T) {
	tc, _ := newTestServer(t)
	tc.login()

	// A second device presenting only the auth cookie has no session.
	other := *tc
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other.http = &http.Client{Jar: jar}
	req, err := http.NewRequest(http.MethodPost, tc.url+"/favorites", strings.NewReader(`{"id":1,"slug":"a","name":"A"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: routes.AuthCookie, Value: "true"})
	resp, err := other.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var apiErr api.Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, apiErr.Redirect)
	assert.Equal(t, "/login?redirect=%2Ffavorites", *apiErr.Redirect)
}

func TestExchangeTokenRequiresBearer(t *testing.T) {
	tc, _ := newTestServer(t)
	resp := tc.do(http.MethodPost, "/session/token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestContact(t *testing.T) {
	tc, writer := newTestServer(t)

	var apiErr api.Error
	resp := tc.do(http.MethodPost, "/contact", api.Contact{Name: "Ana", Email: "ana@example.com", Subject: "Hi", Message: "short"}, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, apiErr.Fields, "message")

	tc.login()
	var receipt api.ContactReceipt
	resp = tc.do(http.MethodPost, "/contact", api.Contact{Name: "Ana", Email: "ana@example.com", Subject: "Refund", Message: "Please refund my order."}, &receipt)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "msg-1", receipt.ID)

	require.Len(t, writer.sent, 1)
	require.NotNil(t, writer.sent[0].UserID)
	assert.Equal(t, "uid-ana", *writer.sent[0].UserID)
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
}

func TestCartEventsFollowMutations(t *testing.T) {
	tc, _ := newTestServer(t)
	tc.do(http.MethodGet, "/cart", nil, nil) // issue the device cookie

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.url+"/cart/events", nil)
	require.NoError(t, err)
	resp, err := tc.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r := bufio.NewReader(resp.Body)
	event, data := readEvent(t, r)
	assert.Equal(t, "cart", event)
	var cart api.Cart
	require.NoError(t, json.Unmarshal([]byte(data), &cart))
	assert.Zero(t, cart.Count)

	tc.do(http.MethodPost, "/cart/items", api.AddCartItem{Slug: "portal-2"}, nil)

	_, data = readEvent(t, r)
	require.NoError(t, json.Unmarshal([]byte(data), &cart))
	assert.Equal(t, 1, cart.Count)
}
