package favorites

import (
	"context"
	"errors"
	"sync"

	"fireplay/errs"
)

// ErrTogglePending is returned when a toggle for the same game is in flight.
var ErrTogglePending = errors.New("toggle already in flight")

// View presents a Store with optimistic toggles. A toggle shows the flipped
// state at once (Pending) and settles to Confirmed, or to Failed with the
// prior state restored. Flips belong to the user who made them and are
// dropped when the session changes hands.
type View struct {
	store *Store

	mu    sync.Mutex
	owner string
	flips map[int64]Flip
}

func NewView(store *Store) *View {
	return &View{
		store: store,
		flips: make(map[int64]Flip),
	}
}

// syncLocked drops the flips of a previous user. mu must be held.
func (v *View) syncLocked() {
	if uid := v.store.owner(); uid != v.owner {
		v.owner = uid
		clear(v.flips)
	}
}

func (v *View) Store() *Store {
	return v.store
}

func (v *View) Favorites() []Item {
	return v.store.Favorites()
}

func (v *View) Loading() bool {
	return v.store.Loading()
}

func (v *View) Add(ctx context.Context, game Game) error {
	return v.store.Add(ctx, game)
}

func (v *View) Remove(ctx context.Context, gameID int64) error {
	return v.store.Remove(ctx, gameID)
}

// Status returns the displayed membership of gameID.
func (v *View) Status(gameID int64) Flip {
	v.mu.Lock()
	v.syncLocked()
	f, ok := v.flips[gameID]
	v.mu.Unlock()
	if ok && f.Status == Pending {
		return f
	}
	return Flip{GameID: gameID, Favorite: v.store.IsFavorite(gameID), Status: f.Status}
}

// Toggle flips game optimistically and then performs the remote write bound
// to ctx. A failed or cancelled write rolls the displayed state back.
func (v *View) Toggle(ctx context.Context, game Game) (Flip, error) {
	if _, err := v.store.user(ctx); err != nil {
		return v.Status(game.ID), err
	}
	if err := errs.Struct(game); err != nil {
		return v.Status(game.ID), err
	}

	v.mu.Lock()
	v.syncLocked()
	owner := v.owner
	if f, ok := v.flips[game.ID]; ok && f.Status == Pending {
		v.mu.Unlock()
		return f, ErrTogglePending
	}
	prior := v.store.IsFavorite(game.ID)
	pending := Flip{GameID: game.ID, Favorite: !prior, Status: Pending}
	v.flips[game.ID] = pending
	v.mu.Unlock()
	v.store.changes.Publish()

	var err error
	if pending.Favorite {
		err = v.store.Add(ctx, game)
	} else {
		err = v.store.Remove(ctx, game.ID)
	}

	result := Flip{GameID: game.ID, Favorite: pending.Favorite, Status: Confirmed}
	if err != nil {
		result = Flip{GameID: game.ID, Favorite: prior, Status: Failed}
	}
	v.mu.Lock()
	v.syncLocked()
	if v.owner == owner {
		v.flips[game.ID] = result
	}
	v.mu.Unlock()
	v.store.changes.Publish()
	return result, err
}
