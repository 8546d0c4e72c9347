// Package ordered runs background writes one at a time per key and drops
// writes that carry an older version than one already seen for that key.
package ordered

import "sync"

type keyState struct {
	lock   sync.Mutex
	newest int64
}

// Writes is safe for concurrent use. The zero value is ready to use.
type Writes struct {
	mu   sync.Mutex
	keys map[string]*keyState
	wg   sync.WaitGroup
}

// Go schedules fn for key at version. It returns false, and never runs fn,
// when a write with the same or a newer version was already scheduled. A
// scheduled write is also dropped if a newer one arrives before it starts.
func (w *Writes) Go(key string, version int64, fn func()) bool {
	w.mu.Lock()
	if w.keys == nil {
		w.keys = make(map[string]*keyState)
	}
	state, ok := w.keys[key]
	if !ok {
		state = &keyState{}
		w.keys[key] = state
	}
	if ok && version <= state.newest {
		w.mu.Unlock()
		return false
	}
	state.newest = version
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		state.lock.Lock()
		defer state.lock.Unlock()
		if w.superseded(state, version) {
			return
		}
		fn()
	}()
	return true
}

func (w *Writes) superseded(state *keyState, version int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return state.newest > version
}

// Wait blocks until every scheduled write has finished or been dropped.
func (w *Writes) Wait() {
	w.wg.Wait()
}
