package session

import (
	"context"
	"sync"
)

// sessionLocks serialises mutating operations on the same session ID.
// Entries exist only while an operation holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire blocks until no other operation holds id, or ctx ends.
// The returned release must be called exactly once.
func (l *sessionLocks) acquire(ctx context.Context, id string) (release func(), err error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.sem <- struct{}{}:
		return func() {
			<-sl.sem
			l.drop(id, sl)
		}, nil
	case <-ctx.Done():
		l.drop(id, sl)
		return nil, ctx.Err()
	}
}

func (l *sessionLocks) drop(id string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *sessionLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
