package charging

import "sync"

// sessionLocks hands out one mutex per charging session id. Entries are
// dropped once no goroutine holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[int]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[int]*sessionLock)}
}

func (l *sessionLocks) lock(id int) func() {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
