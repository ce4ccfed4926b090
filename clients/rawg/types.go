package rawg

type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type Game struct {
	ID              int64   `json:"id"`
	Slug            string  `json:"slug"`
	Name            string  `json:"name"`
	Released        string  `json:"released"`
	BackgroundImage string  `json:"background_image"`
	Rating          float64 `json:"rating"`
	RatingsCount    int64   `json:"ratings_count"`
	Metacritic      *int64  `json:"metacritic"`
	Genres          []Genre `json:"genres"`
}

type PlatformEntry struct {
	Platform Named `json:"platform"`
}

type GameDetails struct {
	Game
	DescriptionRaw string          `json:"description_raw"`
	Description    string          `json:"description"`
	Website        string          `json:"website"`
	Developers     []Named         `json:"developers"`
	Publishers     []Named         `json:"publishers"`
	Platforms      []PlatformEntry `json:"platforms"`
	Tags           []Named         `json:"tags"`
}

type Screenshot struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
}

type GamesPage struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Game  `json:"results"`
}

type screenshotsPage struct {
	Count   int64        `json:"count"`
	Results []Screenshot `json:"results"`
}

type ListParams struct {
	Search    string
	Page      int
	PageSize  int
	Genres    string
	Platforms string
	Ordering  string
}
