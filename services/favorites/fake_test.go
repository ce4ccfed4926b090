package favorites

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"fireplay/clients/identity"
	"fireplay/services/session"
)

type fakeCollection struct {
	mu       sync.Mutex
	docs     map[string]map[int64]Item
	watchers map[string][]func([]Item)
	setErr   error
	watchErr error
	block    chan struct{}
	writes   int
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{
		docs:     make(map[string]map[int64]Item),
		watchers: make(map[string][]func([]Item)),
	}
}

func (f *fakeCollection) snapshot(uid string) []Item {
	items := make([]Item, 0, len(f.docs[uid]))
	for _, item := range f.docs[uid] {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].AddedAt.After(items[j].AddedAt) })
	return items
}

func (f *fakeCollection) notify(uid string) {
	snap := f.snapshot(uid)
	for _, fn := range f.watchers[uid] {
		fn(snap)
	}
}

func (f *fakeCollection) Set(ctx context.Context, uid string, item Item) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	if f.docs[uid] == nil {
		f.docs[uid] = make(map[int64]Item)
	}
	f.docs[uid][item.ID] = item
	f.writes++
	f.notify(uid)
	return nil
}

func (f *fakeCollection) Delete(_ context.Context, uid string, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	delete(f.docs[uid], gameID)
	f.writes++
	f.notify(uid)
	return nil
}

func (f *fakeCollection) Watch(ctx context.Context, uid string, onSnapshot func([]Item)) error {
	f.mu.Lock()
	if f.watchErr != nil {
		err := f.watchErr
		f.mu.Unlock()
		return err
	}
	idx := len(f.watchers[uid])
	f.watchers[uid] = append(f.watchers[uid], onSnapshot)
	onSnapshot(f.snapshot(uid))
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.watchers[uid][idx] = func([]Item) {}
	f.mu.Unlock()
	return nil
}

// external simulates a write from another device.
func (f *fakeCollection) external(uid string, item Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[uid] == nil {
		f.docs[uid] = make(map[int64]Item)
	}
	f.docs[uid][item.ID] = item
	f.notify(uid)
}

func (f *fakeCollection) count(uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[uid])
}

type stubProvider struct{}

func (stubProvider) SignUp(context.Context, string, string) (*identity.AuthResponse, error) {
	return nil, nil
}

func (stubProvider) SignIn(_ context.Context, email, _ string) (*identity.AuthResponse, error) {
	return &identity.AuthResponse{UserID: "uid-" + email, Email: email, IDToken: "t", ExpiresIn: time.Hour}, nil
}

func (stubProvider) UpdateProfile(context.Context, string, string) (*identity.AuthResponse, error) {
	return nil, nil
}

func (stubProvider) Refresh(context.Context, string) (*identity.AuthResponse, error) {
	return nil, nil
}

func signedIn(uid string) *session.Gate {
	g := session.NewGate(stubProvider{})
	g.Resolve(&session.Identity{UserID: uid, ExpiresAt: time.Now().Add(time.Hour)})
	return g
}

func game(id int64) Game {
	return Game{ID: id, Slug: "game-" + strconv.FormatInt(id, 10), Name: "Game", Image: "img.jpg"}
}
