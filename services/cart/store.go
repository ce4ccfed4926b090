package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"fireplay/bus"
	"fireplay/clients/kv"
	"fireplay/errs"

	"github.com/rs/zerolog/log"
)

// StorageKey names the slot holding the serialized cart.
const StorageKey = "fireplayCart"

// Store is the only writer of the cart slot. Every mutation persists the full
// item list and then publishes on the bus so other readers re-load.
type Store struct {
	storage kv.Storage
	bus     *bus.Bus
	mu      sync.Mutex
}

func NewStore(storage kv.Storage, b *bus.Bus) *Store {
	return &Store{
		storage: storage,
		bus:     b,
	}
}

func (s *Store) Bus() *bus.Bus {
	return s.bus
}

// Load returns the persisted items. A missing, unreadable or corrupted slot
// reads as an empty cart.
func (s *Store) Load(ctx context.Context) []Item {
	items, err := s.load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("treating cart as empty")
		return []Item{}
	}
	return items
}

func (s *Store) load(ctx context.Context) ([]Item, error) {
	raw, ok, err := s.storage.Get(ctx, StorageKey)
	if err != nil {
		return nil, errs.Remote("read cart slot", err)
	}
	if !ok || raw == "" {
		return []Item{}, nil
	}
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrParseFailure, err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// current reads the cart a mutation builds on. A corrupted slot counts as
// empty; a failed read aborts so the stored cart is never overwritten.
func (s *Store) current(ctx context.Context) ([]Item, error) {
	items, err := s.load(ctx)
	if errors.Is(err, errs.ErrParseFailure) {
		log.Warn().Err(err).Msg("replacing corrupted cart")
		return []Item{}, nil
	}
	return items, err
}

// Save replaces the persisted cart with items and publishes.
func (s *Store) Save(ctx context.Context, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, items)
}

func (s *Store) save(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.storage.Set(ctx, StorageKey, string(payload)); err != nil {
		return errs.Remote("write cart slot", err)
	}
	s.bus.Publish()
	return nil
}

// AddOrIncrement bumps the quantity of an existing line by one, or appends
// candidate with quantity 1.
func (s *Store) AddOrIncrement(ctx context.Context, candidate Item) ([]Item, error) {
	if candidate.Price < 0 {
		return nil, &errs.ValidationError{Fields: map[string]string{"price": "must not be negative"}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range items {
		if items[i].ID == candidate.ID {
			items[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		candidate.Quantity = 1
		items = append(items, candidate)
	}
	if err := s.save(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetQuantity updates the quantity of line id. Quantities below 1 are
// ignored; removal is a separate operation.
func (s *Store) SetQuantity(ctx context.Context, id int64, quantity int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return items, nil
	}
	for i := range items {
		if items[i].ID == id {
			items[i].Quantity = quantity
		}
	}
	if err := s.save(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Remove drops line id if present.
func (s *Store) Remove(ctx context.Context, id int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	kept := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	if err := s.save(ctx, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Remove(ctx, StorageKey); err != nil {
		return errs.Remote("clear cart slot", err)
	}
	s.bus.Publish()
	return nil
}

// Count is the total quantity across lines, used by the header badge.
func (s *Store) Count(ctx context.Context) int {
	n := 0
	for _, item := range s.Load(ctx) {
		n += item.Quantity
	}
	return n
}
