// Package joblock serializes workflow stage writes per job.
//
// Locks are advisory: the stage column's compare-and-set is what keeps
// writes correct. A lock only keeps concurrent deliveries for one job from
// spinning on conflicts.
package joblock

import (
	"context"
	"sync"
)

// Locker acquires a per-key lock. The returned release function must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type entry struct {
	ch   chan struct{} // buffered(1); holding the token means holding the lock
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped when no goroutine
// holds or waits on them. The zero value is ready to use.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*entry)
	}
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
	}, nil
}

func (l *Local) drop(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports the number of live entries. Used for testing.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
