package reconcile

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedMutex serializes work per customer while letting different
// customers proceed in parallel. Ledger writes for one customer must be
// strictly ordered: the running-balance chain depends on insertion order.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[uuid.UUID]*keyedLock),
	}
}

// Lock acquires the lock for the given key and returns the unlock
// function. Lock entries are reference counted and removed once the last
// holder releases, so the map does not grow with the customer population.
func (k *KeyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
