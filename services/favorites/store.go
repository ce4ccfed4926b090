package favorites

import (
	"context"
	"sync"
	"time"

	"fireplay/bus"
	"fireplay/errs"
	"fireplay/services/session"
	"fireplay/set"

	"github.com/rs/zerolog/log"
)

const (
	defaultRetry = time.Second
	maxRetry     = 30 * time.Second
)

// Store mirrors the signed-in user's favorites collection. The mirror follows
// the session gate: a watch is opened when a user signs in and torn down,
// with the mirror cleared, when the session ends.
type Store struct {
	coll    Collection
	gate    *session.Gate
	changes *bus.Bus
	now     func() time.Time
	retry   time.Duration

	mu      sync.RWMutex
	uid     string
	items   []Item
	index   *set.Set[int64]
	loading bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}

	unsubscribeGate func()
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithRetry(d time.Duration) Option {
	return func(s *Store) { s.retry = d }
}

func NewStore(coll Collection, gate *session.Gate, opts ...Option) *Store {
	s := &Store{
		coll:    coll,
		gate:    gate,
		changes: bus.New("favorites:updated"),
		now:     time.Now,
		retry:   defaultRetry,
		items:   []Item{},
		index:   set.New[int64](),
		loading: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribeGate = gate.Subscribe(s.follow)
	s.follow()
	return s
}

// Bus signals every change of the mirror.
func (s *Store) Bus() *bus.Bus {
	return s.changes
}

// follow reconciles the watch with the gate's current user. The identity is
// read under mu so concurrent gate changes settle in order.
func (s *Store) follow() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	uid := ""
	if id := s.gate.Identity(); id != nil {
		uid = id.UserID
	}
	if uid == s.uid && (uid != "" || !s.loading || s.gate.Loading()) {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.uid = uid
	s.items = []Item{}
	s.index.Clear()

	if uid == "" {
		s.loading = s.gate.Loading()
		s.mu.Unlock()
		s.changes.Publish()
		return
	}

	s.loading = true
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	log.Debug().Str("uid", uid).Msg("opening favorites watch")
	go s.watch(ctx, uid, done)
	s.changes.Publish()
}

// stopLocked cancels the running watch. mu must be held.
func (s *Store) stopLocked() chan struct{} {
	done := s.done
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel, s.done = nil, nil
	return done
}

func (s *Store) watch(ctx context.Context, uid string, done chan struct{}) {
	defer close(done)
	backoff := s.retry
	for {
		err := s.coll.Watch(ctx, uid, func(items []Item) {
			s.apply(uid, items)
		})
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(errs.Remote("watch favorites", err)).Str("uid", uid).Dur("retry", backoff).Msg("favorites watch interrupted")
		s.settle(uid)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetry)
	}
}

// apply replaces the mirror with a snapshot, ignoring snapshots of a user
// that is no longer signed in.
func (s *Store) apply(uid string, items []Item) {
	s.mu.Lock()
	if s.uid != uid {
		s.mu.Unlock()
		return
	}
	s.items = append([]Item(nil), items...)
	s.index.Clear()
	for _, item := range items {
		s.index.Add(item.ID)
	}
	s.loading = false
	size := s.index.Size()
	s.mu.Unlock()
	log.Debug().Str("uid", uid).Int("favorites", size).Msg("favorites snapshot applied")
	s.changes.Publish()
}

func (s *Store) settle(uid string) {
	s.mu.Lock()
	changed := s.uid == uid && s.loading
	if changed {
		s.loading = false
	}
	s.mu.Unlock()
	if changed {
		s.changes.Publish()
	}
}

func (s *Store) user(ctx context.Context) (string, error) {
	id := s.gate.Current(ctx)
	if id == nil {
		return "", errs.ErrAuthRequired
	}
	return id.UserID, nil
}

// Add writes game as a favorite of the signed-in user. Re-adding overwrites.
func (s *Store) Add(ctx context.Context, game Game) error {
	uid, err := s.user(ctx)
	if err != nil {
		return err
	}
	if err := errs.Struct(game); err != nil {
		return err
	}
	item := Item{
		ID:      game.ID,
		Slug:    game.Slug,
		Name:    game.Name,
		Image:   game.Image,
		AddedAt: s.now(),
	}
	if err := s.coll.Set(ctx, uid, item); err != nil {
		return errs.Remote("add favorite", err)
	}

	s.mu.Lock()
	if s.uid == uid {
		kept := make([]Item, 0, len(s.items)+1)
		kept = append(kept, item)
		for _, existing := range s.items {
			if existing.ID != item.ID {
				kept = append(kept, existing)
			}
		}
		s.items = kept
		s.index.Add(item.ID)
	}
	s.mu.Unlock()
	s.changes.Publish()
	return nil
}

// Remove deletes gameID from the signed-in user's favorites. Absent ids are
// not an error.
func (s *Store) Remove(ctx context.Context, gameID int64) error {
	uid, err := s.user(ctx)
	if err != nil {
		return err
	}
	if err := s.coll.Delete(ctx, uid, gameID); err != nil {
		return errs.Remote("remove favorite", err)
	}

	s.mu.Lock()
	if s.uid == uid {
		kept := make([]Item, 0, len(s.items))
		for _, existing := range s.items {
			if existing.ID != gameID {
				kept = append(kept, existing)
			}
		}
		s.items = kept
		s.index.Remove(gameID)
	}
	s.mu.Unlock()
	s.changes.Publish()
	return nil
}

// Toggle flips membership of game and returns whether it is now a favorite.
func (s *Store) Toggle(ctx context.Context, game Game) (bool, error) {
	if _, err := s.user(ctx); err != nil {
		return false, err
	}
	if s.IsFavorite(game.ID) {
		if err := s.Remove(ctx, game.ID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.Add(ctx, game); err != nil {
		return false, err
	}
	return true, nil
}

// IsFavorite answers from the local mirror only.
func (s *Store) IsFavorite(gameID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Contains(gameID)
}

func (s *Store) Favorites() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Item{}, s.items...)
}

// owner is the user the mirror currently belongs to, empty when anonymous.
func (s *Store) owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

// Loading is true until the first snapshot arrives or the session is known
// to be anonymous.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Close stops following the gate and waits for the watch to end.
func (s *Store) Close() {
	s.unsubscribeGate()
	s.mu.Lock()
	s.closed = true
	done := s.stopLocked()
	s.uid = ""
	s.items = []Item{}
	s.index.Clear()
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
