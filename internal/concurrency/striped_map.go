package concurrency

import (
	"hash/maphash"
	"sync"
)

const (
	defaultStripeCount int = 16
)

// StripedMap is a concurrent map split into independently locked stripes.
// Operations on a single key are atomic with respect to each other.
type StripedMap[K comparable, V any] struct {
	seed    maphash.Seed
	stripes []stripe[K, V]
}

type stripe[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewStripedMap[K comparable, V any](numStripes int) *StripedMap[K, V] {
	count := numStripes
	if count <= 0 {
		count = defaultStripeCount
	}

	s := &StripedMap[K, V]{
		seed:    maphash.MakeSeed(),
		stripes: make([]stripe[K, V], count),
	}
	for i := range s.stripes {
		s.stripes[i].m = make(map[K]V)
	}
	return s
}

// Swap stores value and returns the value it replaced, if any.
func (s *StripedMap[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	st := s.stripe(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	previous, loaded = st.m[key]
	st.m[key] = value
	return previous, loaded
}

func (s *StripedMap[K, V]) Get(key K) (V, bool) {
	st := s.stripe(key)
	st.mu.RLock()
	defer st.mu.RUnlock()

	v, ok := st.m[key]
	return v, ok
}

// LoadAndDelete removes key and returns the value it held. Two concurrent
// callers never both observe loaded=true for the same stored value.
func (s *StripedMap[K, V]) LoadAndDelete(key K) (V, bool) {
	st := s.stripe(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	v, ok := st.m[key]
	if ok {
		delete(st.m, key)
	}
	return v, ok
}

// DeleteIf removes key only when match reports true for its current value.
func (s *StripedMap[K, V]) DeleteIf(key K, match func(V) bool) bool {
	st := s.stripe(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	v, ok := st.m[key]
	if !ok || !match(v) {
		return false
	}
	delete(st.m, key)
	return true
}

// GetOrCreate returns the value for key, calling create under the stripe
// lock to insert one if absent.
func (s *StripedMap[K, V]) GetOrCreate(key K, create func() V) (V, bool) {
	st := s.stripe(key)

	st.mu.RLock()
	v, ok := st.m[key]
	st.mu.RUnlock()
	if ok {
		return v, true
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if v, ok := st.m[key]; ok {
		return v, true
	}
	v = create()
	st.m[key] = v
	return v, false
}

// Drain removes every entry and returns them. Entries inserted
// concurrently into an already drained stripe are kept.
func (s *StripedMap[K, V]) Drain() map[K]V {
	out := make(map[K]V)
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for k, v := range st.m {
			out[k] = v
		}
		st.m = make(map[K]V)
		st.mu.Unlock()
	}
	return out
}

func (s *StripedMap[K, V]) Len() int {
	count := 0
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.RLock()
		count += len(st.m)
		st.mu.RUnlock()
	}
	return count
}

func (s *StripedMap[K, V]) stripe(key K) *stripe[K, V] {
	h := maphash.Comparable(s.seed, key)
	return &s.stripes[h%uint64(len(s.stripes))]
}
