package series

import (
	"sort"
	"sync"

	"trading-chartsv1/internal/timeline"
)

// Registry maps series keys to Series sharing one Timeline.
type Registry struct {
	mu       sync.RWMutex
	timeline *timeline.Timeline
	series   map[string]*Series
}

// NewRegistry creates an empty registry.
func NewRegistry(tl *timeline.Timeline) *Registry {
	return &Registry{timeline: tl, series: make(map[string]*Series)}
}

func (r *Registry) Timeline() *timeline.Timeline { return r.timeline }

// Get returns the series for key.
func (r *Registry) Get(key string) (*Series, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.series[key]
	return s, ok
}

// GetOrCreate returns the series for key, creating it if needed. created is
// true for exactly one caller per key.
func (r *Registry) GetOrCreate(key string) (s *Series, created bool) {
	if s, ok := r.Get(key); ok {
		return s, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.series[key]; ok {
		return s, false
	}
	s = New(key, r.timeline)
	r.series[key] = s
	return s, true
}

// Remove deletes key. Returns the removed series, if any.
func (r *Registry) Remove(key string) (*Series, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[key]
	delete(r.series, key)
	return s, ok
}

// Keys returns all keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of series.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.series)
}
