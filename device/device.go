// Package device groups the per browser context state: one cart slot, one
// session gate and one favorites view per device id.
package device

import (
	"sync"
	"time"

	"fireplay/bus"
	"fireplay/clients/identity"
	"fireplay/clients/kv"
	"fireplay/services/cart"
	"fireplay/services/favorites"
	"fireplay/services/session"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

type Device struct {
	ID        string
	Cart      *cart.Store
	Gate      *session.Gate
	Favorites *favorites.View
}

func (d *Device) Close() {
	d.Favorites.Store().Close()
	d.Gate.Close()
}

type Config struct {
	Size int
	TTL  time.Duration
}

type Registry struct {
	storage  kv.Storage
	provider identity.Client
	coll     favorites.Collection

	mu    sync.Mutex
	cache *expirable.LRU[string, *Device]
}

func NewRegistry(cfg Config, storage kv.Storage, provider identity.Client, coll favorites.Collection) *Registry {
	if cfg.Size <= 0 {
		cfg.Size = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	r := &Registry{
		storage:  storage,
		provider: provider,
		coll:     coll,
	}
	r.cache = expirable.NewLRU[string, *Device](cfg.Size, func(id string, d *Device) {
		log.Debug().Str("device", id).Msg("closing idle device")
		d.Close()
	}, cfg.TTL)
	return r
}

// NewID returns a fresh device id.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether id looks like one handed out by NewID.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the device for id, creating it on first use. Every access
// pushes the idle expiry back.
func (r *Registry) Get(id string) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.cache.Get(id); ok {
		r.cache.Add(id, d)
		return d
	}
	// An expired entry may still be waiting for the cleanup tick.
	r.cache.Remove(id)

	gate := session.NewGate(r.provider)
	d := &Device{
		ID:        id,
		Cart:      cart.NewStore(kv.WithScope(r.storage, id), bus.New("cart:updated")),
		Gate:      gate,
		Favorites: favorites.NewView(favorites.NewStore(r.coll, gate)),
	}
	r.cache.Add(id, d)
	return d
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close closes every device.
func (r *Registry) Close() {
	r.cache.Purge()
}
