package fetcher

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo deduplicates concurrent lookups of the same key and remembers
// successful results for the rest of the run. Failed lookups are not cached.
type Memo struct {
	g    singleflight.Group
	data sync.Map
}

func NewMemo() *Memo {
	return &Memo{}
}

func (m *Memo) Get(key string) (any, bool) {
	return m.data.Load(key)
}

// Do returns the cached value for key, or runs fn once across all concurrent
// callers asking for it. shared reports whether the value came from another
// caller or the cache.
func (m *Memo) Do(key string, fn func() (any, error)) (v any, err error, shared bool) {
	if v, ok := m.data.Load(key); ok {
		return v, nil, true
	}
	v, err, shared = m.g.Do(key, func() (any, error) {
		if v, ok := m.data.Load(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		m.data.Store(key, v)
		return v, nil
	})
	return v, err, shared
}
