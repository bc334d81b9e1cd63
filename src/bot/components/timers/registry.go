package timers

import (
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Registry tracks one pending expiration per proposal. It is purely
// in-memory and process-scoped: it starts empty and is rehydrated from
// the store on startup. Firing never mutates state directly; it hands
// the proposal id to the fire callback, which routes into the
// dispatcher mailbox.
type Registry struct {
	clock clockwork.Clock
	fire  func(id string)

	mu      sync.Mutex
	pending map[string]clockwork.Timer
}

func New(clock clockwork.Clock, fire func(id string)) *Registry {
	return &Registry{
		clock:   clock,
		fire:    fire,
		pending: make(map[string]clockwork.Timer),
	}
}

// Schedule registers a one-shot expiration at expiresAt. A deadline in
// the past fires immediately rather than being dropped; lazy consensus
// favors eventual approval over losing proposals. Scheduling an id that
// is already tracked is a no-op.
func (r *Registry) Schedule(id string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		return
	}

	d := expiresAt.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}

	r.pending[id] = r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		_, live := r.pending[id]
		delete(r.pending, id)
		r.mu.Unlock()
		if live {
			r.fire(id)
		}
	})
}

// Cancel removes a pending expiration. It is a no-op if the timer
// already fired or was never scheduled; a callback already in flight is
// tolerated downstream by the store's conditional write.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.pending[id]; ok {
		t.Stop()
		delete(r.pending, id)
	}
}

// Stop cancels every pending timer. Teardown only.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.pending {
		t.Stop()
		delete(r.pending, id)
	}
	log.Println("Timer registry stopped")
}

// Len returns the number of tracked timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
