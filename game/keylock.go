package game

import "sync"

// keyLock hands out one mutex per user. Different users never contend.
// Entries are reference counted and dropped when the last holder unlocks.
type keyLock struct {
	mu    sync.Mutex
	locks map[UserID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[UserID]*refMutex)}
}

// Lock blocks until the caller holds userID's mutex and returns the unlock func.
func (k *keyLock) Lock(userID UserID) func() {
	k.mu.Lock()
	m, ok := k.locks[userID]
	if !ok {
		m = &refMutex{}
		k.locks[userID] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, userID)
		}
		k.mu.Unlock()
	}
}
