package registry

import (
	"sync"
	"sync/atomic"
)

// Holder keeps the active registry and swaps it atomically on reload.
// Subscribers receive the ETag of every stored registry.
type Holder struct {
	current atomic.Pointer[Registry]

	mu   sync.Mutex
	subs map[chan string]struct{}
}

func NewHolder(r *Registry) *Holder {
	h := &Holder{subs: make(map[chan string]struct{})}
	h.current.Store(r)
	return h
}

// Load returns the active registry. It never blocks.
func (h *Holder) Load() *Registry {
	return h.current.Load()
}

// Store activates r and notifies subscribers.
func (h *Holder) Store(r *Registry) {
	h.current.Store(r)
	h.publish(r.ETag())
}

// Subscribe registers a listener and returns its channel and an
// unsubscribe func.
func (h *Holder) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// publish never blocks; a slow listener misses intermediate tags.
func (h *Holder) publish(etag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- etag:
		default:
		}
	}
}
