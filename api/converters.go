package api

import (
	"errors"
	"net/http"

	"fireplay/clients/rawg"
	"fireplay/errs"
	"fireplay/routes"
	"fireplay/services/catalog"
	"fireplay/services/contact"
	"fireplay/services/favorites"
	"fireplay/services/session"
	"fireplay/utils"
)

func names(items []rawg.Named) []string {
	result := make([]string, 0, len(items))
	for _, n := range items {
		result = append(result, n.Name)
	}
	return result
}

func TransformGame(g rawg.Game) GameSummary {
	pricing := catalog.PriceFor(g.Rating)
	genres := make([]string, 0, len(g.Genres))
	for _, genre := range g.Genres {
		genres = append(genres, genre.Name)
	}
	return GameSummary{
		ID:           g.ID,
		Slug:         g.Slug,
		Name:         g.Name,
		Released:     g.Released,
		Image:        g.BackgroundImage,
		Rating:       g.Rating,
		RatingsCount: g.RatingsCount,
		Metacritic:   g.Metacritic,
		Genres:       genres,
		Price:        pricing.Price,
		ListPrice:    pricing.ListPrice,
		DiscountPct:  pricing.DiscountPct,
	}
}

func TransformGamesPage(page rawg.GamesPage) GamesPage {
	results := make([]GameSummary, 0, len(page.Results))
	for _, g := range page.Results {
		results = append(results, TransformGame(g))
	}
	return GamesPage{
		Count:    page.Count,
		Next:     page.Next,
		Previous: page.Previous,
		Results:  results,
	}
}

func TransformGameDetails(d *rawg.GameDetails) *GameDetails {
	if d == nil {
		return nil
	}
	description := d.DescriptionRaw
	if description == "" {
		description = d.Description
	}
	platforms := make([]string, 0, len(d.Platforms))
	for _, p := range d.Platforms {
		platforms = append(platforms, p.Platform.Name)
	}
	return &GameDetails{
		GameSummary: TransformGame(d.Game),
		Description: description,
		Website:     d.Website,
		Developers:  names(d.Developers),
		Publishers:  names(d.Publishers),
		Platforms:   platforms,
		Tags:        names(d.Tags),
	}
}

func TransformQuery(q GamesQuery) catalog.Query {
	return catalog.Query{
		Search:    q.Search,
		Page:      q.Page,
		PageSize:  q.PageSize,
		Genres:    q.Genres,
		Platforms: q.Platforms,
		Ordering:  q.Ordering,
	}
}

func TransformUser(id *session.Identity) *User {
	if id == nil {
		return nil
	}
	return &User{
		UID:         id.UserID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
	}
}

func TransformSession(state session.State, id *session.Identity) Session {
	return Session{
		State:         state.String(),
		Authenticated: state == session.Authenticated,
		User:          TransformUser(id),
	}
}

// TransformFavorites pairs every mirrored favorite with its displayed status.
func TransformFavorites(view *favorites.View) Favorites {
	items := view.Favorites()
	result := Favorites{
		Loading: view.Loading(),
		Items:   make([]Favorite, 0, len(items)),
	}
	for _, item := range items {
		result.Items = append(result.Items, Favorite{
			Item:   item,
			Status: view.Status(item.ID).Status,
		})
	}
	return result
}

func FavoriteGames(items []favorites.Item) []favorites.Game {
	result := make([]favorites.Game, 0, len(items))
	for _, item := range items {
		result = append(result, favorites.Game{ID: item.ID, Slug: item.Slug, Name: item.Name, Image: item.Image})
	}
	return result
}

func ToSignUpForm(r Register) session.SignUpForm {
	return session.SignUpForm{
		Name:            r.Name,
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
	}
}

func ToSignInForm(l Login) session.SignInForm {
	return session.SignInForm{Email: l.Email, Password: l.Password}
}

func ToContactMessage(c Contact) contact.Message {
	return contact.Message{
		Name:    c.Name,
		Email:   c.Email,
		Subject: c.Subject,
		Message: c.Message,
	}
}

// TransformError maps err onto a status code and body. path is the request
// path, used as the return target when a session is required.
func TransformError(err error, path string) (int, Error) {
	if v, ok := errs.IsValidation(err); ok {
		return http.StatusUnprocessableEntity, Error{Error: "validation failed", Fields: v.Fields}
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, Error{Error: "not found"}
	case errors.Is(err, errs.ErrAuthRequired):
		return http.StatusUnauthorized, Error{
			Error:    "sign in required",
			Redirect: utils.ToPointer(routes.LoginRedirect(path)),
		}
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, Error{Error: "invalid email or password"}
	case errors.Is(err, favorites.ErrTogglePending):
		return http.StatusConflict, Error{Error: "toggle already in progress"}
	case errors.Is(err, errs.ErrRemoteFailure):
		return http.StatusServiceUnavailable, Error{Error: "service unavailable, please try again", Retry: true}
	default:
		return http.StatusInternalServerError, Error{Error: "internal error"}
	}
}
