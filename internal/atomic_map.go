package internal

import "sync"

// AtomicMap is a typed wrapper over sync.Map.
type AtomicMap[K comparable, V any] struct {
	m sync.Map
}

func (a *AtomicMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	v, l := a.m.LoadOrStore(key, value)
	loaded = l
	actual = v.(V)
	return
}

func (a *AtomicMap[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	v, l := a.m.LoadAndDelete(key)
	if l {
		loaded = true
		value = v.(V)
	}
	return
}

func (a *AtomicMap[K, V]) CompareAndDelete(key K, old V) (deleted bool) {
	return a.m.CompareAndDelete(key, old)
}

func (a *AtomicMap[K, V]) Range() func(func(key K, value V) bool) {
	return func(yield func(key K, value V) bool) {
		a.m.Range(func(key, value any) bool {
			return yield(key.(K), value.(V))
		})
	}
}
