package pipeline

import "sync"

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// sessionLocks serialises work per session id. Entries are dropped once no
// caller holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	entry, exists := l.locks[id]
	if !exists {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
