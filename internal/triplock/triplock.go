// Package triplock provides the per-trip exclusive section the reconciler
// holds while it validates and commits an edit. Local serializes within one
// process; Redis extends that across workers sharing a database.
package triplock

import (
	"context"
	"fmt"
	"sync"
)

// Locker acquires an exclusive section for key. The returned unlock func is
// safe to call more than once. Lock gives up with the context's error when ctx
// ends before the section is free.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Local is an in-process keyed lock. Keys are reference counted, so the map
// only holds keys with a holder or a waiter.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewLocal returns an empty in-process lock table.
func NewLocal() *Local {
	return &Local{keys: map[string]*entry{}}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("triplock.Local.Lock: %w", ctx.Err())
	}
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// held reports how many keys currently have a holder or waiter.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
