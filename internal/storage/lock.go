package storage

import (
	"slices"
	"sync"
)

// pathLocks hands out one mutex per absolute path. Entries are reference
// counted and dropped when the last holder unlocks.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.Mutex
	refs int
}

// lock acquires the mutexes of every distinct path in a fixed order, so two
// callers locking the same pair cannot deadlock. The returned func releases
// them.
func (l *pathLocks) lock(paths ...string) func() {
	keys := slices.Clone(paths)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*pathLock, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		if l.locks == nil {
			l.locks = make(map[string]*pathLock)
		}
		pl, ok := l.locks[k]
		if !ok {
			pl = &pathLock{}
			l.locks[k] = pl
		}
		pl.refs++
		l.mu.Unlock()

		pl.Lock()
		held = append(held, pl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}
