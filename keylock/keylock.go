// Package keylock serializes work per key, e.g. per attempt or per exam.
package keylock

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits for them.
type Map[K comparable] struct {
	entries *xsync.MapOf[K, *entry]
}

func New[K comparable]() *Map[K] {
	return &Map[K]{entries: xsync.NewMapOf[K, *entry]()}
}

// Lock blocks until the key is free and returns the matching unlock.
func (m *Map[K]) Lock(key K) (unlock func()) {
	e, _ := m.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			old = &entry{}
		}
		old.refs++
		return old, false
	})
	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		m.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
			old.refs--
			return old, old.refs == 0
		})
	}
}

// Len is the number of keys currently locked or awaited.
func (m *Map[K]) Len() int {
	return m.entries.Size()
}
