package favorites

import (
	"fmt"
	"time"
)

type Item struct {
	ID      int64     `json:"id" firestore:"id"`
	Slug    string    `json:"slug" firestore:"slug"`
	Name    string    `json:"name" firestore:"name"`
	Image   string    `json:"image" firestore:"image"`
	AddedAt time.Time `json:"addedAt" firestore:"added_at"`
}

// Game is what a caller knows about a game when favoriting it.
type Game struct {
	ID    int64  `json:"id" validate:"required"`
	Slug  string `json:"slug" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Image string `json:"image"`
}

type Status int

const (
	None Status = iota
	Pending
	Confirmed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "none"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = Pending
	case "confirmed":
		*s = Confirmed
	case "failed":
		*s = Failed
	case "none", "":
		*s = None
	default:
		return fmt.Errorf("unknown favorite status %q", text)
	}
	return nil
}

// Flip is the displayed favorite state of one game in a View.
type Flip struct {
	GameID   int64  `json:"gameId"`
	Favorite bool   `json:"favorite"`
	Status   Status `json:"status"`
}
