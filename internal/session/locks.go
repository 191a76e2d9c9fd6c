package session

import "sync"

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyLocks hands out one mutex per challenge id. Entries are reference
// counted so idle challenges don't keep a mutex around.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) Lock(challengeID string) {
	k.mu.Lock()
	l, ok := k.locks[challengeID]
	if !ok {
		l = &keyLock{}
		k.locks[challengeID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

func (k *keyLocks) Unlock(challengeID string) {
	k.mu.Lock()
	l, ok := k.locks[challengeID]
	if !ok {
		k.mu.Unlock()
		panic("session: unlock of unlocked challenge " + challengeID)
	}
	l.refs--
	if l.refs == 0 {
		delete(k.locks, challengeID)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
