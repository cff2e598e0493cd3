package service

import "sync"

// ownerLocks serializes writes per owner. Two requests for the same owner
// take turns through load-mutate-save; requests for different owners never
// wait on each other.
//
// Entries are reference counted and dropped when the last holder unlocks,
// so the map only holds owners with a write in flight.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*ownerLock)}
}

// lock blocks until the caller holds owner's lock and returns the unlock func.
func (l *ownerLocks) lock(owner string) func() {
	l.mu.Lock()
	ol, ok := l.locks[owner]
	if !ok {
		ol = &ownerLock{}
		l.locks[owner] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()

	return func() {
		ol.mu.Unlock()

		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, owner)
		}
		l.mu.Unlock()
	}
}

// Locks is the per-owner write lock shared by the category and item
// services. Build one per store and hand it to both constructors.
type Locks struct {
	owners *ownerLocks
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{owners: newOwnerLocks()}
}
