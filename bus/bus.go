// Package bus provides a named, payload-less change signal. Writers publish
// after mutating a store; readers re-load from the store when signalled.
package bus

import "sync"

type Bus struct {
	name string

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func()
}

func New(name string) *Bus {
	return &Bus{
		name: name,
		subs: make(map[uint64]func()),
	}
}

func (b *Bus) Name() string {
	return b.name
}

// Subscribe registers fn and returns a func that releases it. Releasing more
// than once is harmless.
func (b *Bus) Subscribe(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Notify is the channel form of Subscribe for streaming consumers. Signals
// that arrive while one is already pending are coalesced.
func (b *Bus) Notify() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	unsubscribe := b.Subscribe(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	return ch, unsubscribe
}

// Publish signals every handler registered at the time of the call. Handlers
// run outside the lock so they may subscribe or unsubscribe themselves.
func (b *Bus) Publish() {
	b.mu.Lock()
	handlers := make([]func(), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
