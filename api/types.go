package api

import (
	"time"

	"fireplay/services/cart"
	"fireplay/services/favorites"
)

type Pong struct {
	Ping string `json:"ping"`
}

type Error struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect *string           `json:"redirect,omitempty"`
	Retry    bool              `json:"retry,omitempty"`
}

type GameSummary struct {
	ID           int64    `json:"id"`
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Released     string   `json:"released,omitempty"`
	Image        string   `json:"image,omitempty"`
	Rating       float64  `json:"rating"`
	RatingsCount int64    `json:"ratingsCount"`
	Metacritic   *int64   `json:"metacritic"`
	Genres       []string `json:"genres"`
	Price        float64  `json:"price"`
	ListPrice    float64  `json:"listPrice"`
	DiscountPct  int      `json:"discountPct"`
}

type GameDetails struct {
	GameSummary
	Description string   `json:"description"`
	Website     string   `json:"website,omitempty"`
	Developers  []string `json:"developers"`
	Publishers  []string `json:"publishers"`
	Platforms   []string `json:"platforms"`
	Tags        []string `json:"tags"`
}

type GamesPage struct {
	Count    int64         `json:"count"`
	Next     *string       `json:"next"`
	Previous *string       `json:"previous"`
	Results  []GameSummary `json:"results"`
}

type GamesQuery struct {
	Search    string `form:"search"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Genres    string `form:"genres"`
	Platforms string `form:"platforms"`
	Ordering  string `form:"ordering"`
}

type AddCartItem struct {
	Slug string `json:"slug"`
}

type SetQuantity struct {
	Quantity int `json:"quantity"`
}

type Cart = cart.Totals

type Checkout struct {
	User *User `json:"user"`
	Cart Cart  `json:"cart"`
}

type FavoriteGame = favorites.Game

type Favorite struct {
	favorites.Item
	Status favorites.Status `json:"status"`
}

type Favorites struct {
	Loading bool       `json:"loading"`
	Items   []Favorite `json:"items"`
}

type Register struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type Session struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	User          *User  `json:"user,omitempty"`
}

type Dashboard struct {
	User           *User            `json:"user"`
	CartCount      int              `json:"cartCount"`
	FavoritesCount int              `json:"favoritesCount"`
	Favorites      []favorites.Game `json:"favorites"`
}

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type ContactReceipt struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
