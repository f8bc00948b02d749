package ledger

import "sync"

// lockRegistry hands out one mutex per account id, created lazily on first
// use and kept for the process lifetime. The registry's own map is guarded
// by a coarse mutex held only for the lookup-or-insert, never across an
// account operation. Handles are never evicted: accounts are few and
// long-lived, so the map growing with the account set is an accepted
// tradeoff.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

// lockFor returns the mutex for id, creating it on first use. Every call
// with the same id returns the same handle, across all goroutines.
func (r *lockRegistry) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}
