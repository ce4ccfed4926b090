package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"fireplay/clients/rawg"
	"fireplay/errs"
	"fireplay/services/favorites"
	"fireplay/services/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSwagger(t *testing.T) {
	swagger, err := GetSwagger()
	require.NoError(t, err)
	assert.NotNil(t, swagger.Paths.Find("/cart/items/{id}"))
	assert.Contains(t, swagger.Components.SecuritySchemes, "bearerAuth")
}

func TestTransformGamePricing(t *testing.T) {
	metacritic := int64(92)
	got := TransformGame(rawg.Game{
		ID:              3498,
		Slug:            "grand-theft-auto-v",
		Name:            "Grand Theft Auto V",
		Rating:          4.47,
		Metacritic:      &metacritic,
		BackgroundImage: "https://media.rawg.io/gta.jpg",
		Genres:          []rawg.Genre{{ID: 4, Name: "Action", Slug: "action"}},
	})
	assert.Equal(t, 35.99, got.Price)
	assert.Equal(t, 46.79, got.ListPrice)
	assert.Equal(t, 23, got.DiscountPct)
	assert.Equal(t, []string{"Action"}, got.Genres)
	assert.Equal(t, "https://media.rawg.io/gta.jpg", got.Image)
}

func TestTransformGameDetailsPrefersRawDescription(t *testing.T) {
	got := TransformGameDetails(&rawg.GameDetails{
		Game:           rawg.Game{ID: 1, Slug: "a", Name: "A"},
		DescriptionRaw: "plain",
		Description:    "<p>plain</p>",
		Platforms:      []rawg.PlatformEntry{{Platform: rawg.Named{ID: 4, Name: "PC"}}},
	})
	require.NotNil(t, got)
	assert.Equal(t, "plain", got.Description)
	assert.Equal(t, []string{"PC"}, got.Platforms)
	assert.Empty(t, got.Developers)
	assert.Nil(t, TransformGameDetails(nil))
}

func TestTransformSession(t *testing.T) {
	got := TransformSession(session.Authenticated, &session.Identity{UserID: "u1", Email: "a@b.co", DisplayName: "Ada"})
	assert.Equal(t, Session{
		State:         "authenticated",
		Authenticated: true,
		User:          &User{UID: "u1", Email: "a@b.co", DisplayName: "Ada"},
	}, got)

	got = TransformSession(session.Anonymous, nil)
	assert.False(t, got.Authenticated)
	assert.Nil(t, got.User)
}

func TestFavoriteGames(t *testing.T) {
	got := FavoriteGames([]favorites.Item{{ID: 7, Slug: "portal", Name: "Portal", Image: "p.jpg"}})
	assert.Equal(t, []favorites.Game{{ID: 7, Slug: "portal", Name: "Portal", Image: "p.jpg"}}, got)
}

func TestTransformError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		retry    bool
		redirect string
	}{
		{"not found", fmt.Errorf("game: %w", errs.ErrNotFound), http.StatusNotFound, false, ""},
		{"auth", errs.ErrAuthRequired, http.StatusUnauthorized, false, "/login?redirect=%2Ffavorites"},
		{"credentials", session.ErrInvalidCredentials, http.StatusUnauthorized, false, ""},
		{"pending", favorites.ErrTogglePending, http.StatusConflict, false, ""},
		{"remote", errs.Remote("write", errors.New("unavailable")), http.StatusServiceUnavailable, true, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := TransformError(tt.err, "/favorites")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.retry, body.Retry)
			if tt.redirect == "" {
				assert.Nil(t, body.Redirect)
			} else {
				require.NotNil(t, body.Redirect)
				assert.Equal(t, tt.redirect, *body.Redirect)
			}
		})
	}

	code, body := TransformError(&errs.ValidationError{Fields: map[string]string{"email": "must be a valid email address"}}, "/contact")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "must be a valid email address", body.Fields["email"])
}
