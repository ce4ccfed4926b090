package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"

	"fireplay/clients/rawg"
	"fireplay/errs"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPageSize = 20
	DefaultOrdering = "-added"
	MaxPageSize     = 40
)

type Query struct {
	Search    string
	Page      int
	PageSize  int
	Genres    string
	Platforms string
	Ordering  string
}

type Service interface {
	// Search never fails; upstream errors degrade to an empty page.
	Search(ctx context.Context, q Query) rawg.GamesPage
	// Game returns errs.ErrNotFound for an unknown slug.
	Game(ctx context.Context, slug string) (*rawg.GameDetails, error)
	// Screenshots never fails; upstream errors degrade to an empty list.
	Screenshots(ctx context.Context, slug string) []rawg.Screenshot
}

type service struct {
	client rawg.Client
}

var _ Service = (*service)(nil)

func NewService(client rawg.Client) Service {
	return &service{client: client}
}

func normalize(q Query) rawg.ListParams {
	p := rawg.ListParams{
		Search:    q.Search,
		Page:      q.Page,
		PageSize:  q.PageSize,
		Genres:    q.Genres,
		Platforms: q.Platforms,
		Ordering:  q.Ordering,
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if p.Ordering == "" {
		p.Ordering = DefaultOrdering
	}
	return p
}

func emptyPage() rawg.GamesPage {
	return rawg.GamesPage{Results: []rawg.Game{}}
}

func (s *service) Search(ctx context.Context, q Query) rawg.GamesPage {
	params := normalize(q)
	page, err := s.client.ListGames(ctx, params)
	if err != nil {
		log.Error().Err(errs.Remote("list games", err)).Str("search", params.Search).Int("page", params.Page).Msg("catalog search degraded")
		return emptyPage()
	}
	if page.Results == nil {
		page.Results = []rawg.Game{}
	}
	return *page
}

func (s *service) Game(ctx context.Context, slug string) (*rawg.GameDetails, error) {
	if slug == "" {
		return nil, errs.ErrNotFound
	}
	game, err := s.client.GetGame(ctx, slug)
	if errors.Is(err, rawg.ErrNotFound) {
		return nil, fmt.Errorf("game %q: %w", slug, errs.ErrNotFound)
	}
	if err != nil {
		return nil, errs.Remote("get game", err)
	}
	return game, nil
}

func (s *service) Screenshots(ctx context.Context, slug string) []rawg.Screenshot {
	shots, err := s.client.GetScreenshots(ctx, slug)
	if err != nil {
		if !errors.Is(err, rawg.ErrNotFound) {
			log.Error().Err(errs.Remote("get screenshots", err)).Str("slug", slug).Msg("screenshots degraded")
		}
		return []rawg.Screenshot{}
	}
	if shots == nil {
		return []rawg.Screenshot{}
	}
	return shots
}

// Pricing is the storefront price derived from a game's rating.
type Pricing struct {
	Price       float64 `json:"price"`
	ListPrice   float64 `json:"listPrice"`
	DiscountPct int     `json:"discountPct"`
}

const (
	unratedPrice = 19.99
	minPrice     = 0.99
	listMarkup   = 1.3
)

// PriceFor prices unrated games at 19.99 and rated games at
// round(rating*10 - 10) + 0.99, never below 0.99.
func PriceFor(rating float64) Pricing {
	price := unratedPrice
	if rating > 0 {
		price = max(math.Round(rating*10-10)+0.99, minPrice)
	}
	list := roundCents(price * listMarkup)
	return Pricing{
		Price:       price,
		ListPrice:   list,
		DiscountPct: int(math.Round((price*listMarkup - price) / (price * listMarkup) * 100)),
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
