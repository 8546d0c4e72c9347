package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// errNotStarted marks an operation that gave up before touching the section.
var errNotStarted = errors.New("operation not started")

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// keyedLocks serializes work per section id inside one process. Entries are
// reference counted and dropped once nobody holds or waits on them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// acquire blocks until the lock for id is held or ctx ends. The returned
// func releases it and must be called exactly once.
func (k *keyedLocks) acquire(ctx context.Context, id string) (func(), error) {
	k.mu.Lock()
	lock, ok := k.locks[id]
	if !ok {
		lock = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[id] = lock
	}
	lock.refs++
	k.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(id, lock)
		return nil, fmt.Errorf("%w: %w", errNotStarted, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.ch
			k.drop(id, lock)
		})
	}, nil
}

func (k *keyedLocks) drop(id string, lock *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, id)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
