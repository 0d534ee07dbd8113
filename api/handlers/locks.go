package handlers

import "sync"

// keyedMutex serializes mutations per aggregate id. Booking writes lock the
// ride id so two concurrent bookings cannot both pass the capacity check
// against a stale read; rating recomputes lock the reviewed user id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for the given key, creating it on first use.
// Entries are never evicted; the key space is bounded by live aggregates.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for the given key
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m := k.locks[key]
	k.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}

// rideLocks serializes booking mutations per ride, userLocks serializes
// rating-aggregate recomputes per reviewed user
var (
	rideLocks = newKeyedMutex()
	userLocks = newKeyedMutex()
)
