// Package series stores OHLC bars per instrument, ordered by timeline index.
//
// Each Series owns an explicit sync.RWMutex. Mutations and attached listener
// recomputation run under the write lock; accessors take the read lock.
// Observer notifications are delivered after the lock is released.
package series

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/google/uuid"

	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/observer"
	"trading-chartsv1/internal/timeline"
)

// Listener is notified of every mutation while the series write lock is held.
// bars is the full ordered slice and must not be retained or modified;
// from is the first position whose derived values are no longer valid.
type Listener interface {
	Recompute(bars []model.Bar, from int)
}

// EventKind classifies a series mutation.
type EventKind int

const (
	Appended EventKind = iota
	Replaced
	Inserted
	Restored
)

func (k EventKind) String() string {
	switch k {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Inserted:
		return "inserted"
	case Restored:
		return "restored"
	}
	return "unknown"
}

// Event describes a completed mutation.
type Event struct {
	Key      string
	Kind     EventKind
	Bar      model.Bar // zero for Restored
	Position int       // first affected position
	Size     int
}

// Series is an ordered, index-unique collection of bars on one Timeline.
type Series struct {
	mu        sync.RWMutex
	key       string
	exchange  string
	token     string
	timeline  *timeline.Timeline
	bars      []model.Bar
	listeners []Listener

	events observer.Subject[Event]
}

// New creates an empty series for key ("exchange:token").
func New(key string, tl *timeline.Timeline) *Series {
	ex, tok := model.SplitKey(key)
	return &Series{key: key, exchange: ex, token: tok, timeline: tl}
}

func (s *Series) Key() string                  { return s.key }
func (s *Series) Timeline() *timeline.Timeline { return s.timeline }

// Append buckets bar onto the timeline and stores it. A bar already present
// at the same index is replaced. Returns the index and whether a replacement
// happened.
func (s *Series) Append(bar model.Bar) (int, bool, error) {
	bar, err := s.normalize(bar)
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	pos, replaced := s.put(bar)
	s.recompute(pos)
	size := len(s.bars)
	s.mu.Unlock()

	s.events.Notify(Event{Key: s.key, Kind: s.kindOf(pos, size, replaced), Bar: bar, Position: pos, Size: size})
	return bar.Index, replaced, nil
}

// Merge folds bar into the bar already stored at its index (high=max,
// low=min, close=last, volume summed). Without an existing bar it behaves
// like Append.
func (s *Series) Merge(bar model.Bar) (model.Bar, bool, error) {
	bar, err := s.normalize(bar)
	if err != nil {
		return model.Bar{}, false, err
	}

	s.mu.Lock()
	pos, found := s.search(bar.Index)
	if found {
		cur := s.bars[pos]
		cur.High = max(cur.High, bar.High)
		cur.Low = min(cur.Low, bar.Low)
		cur.Close = bar.Close
		cur.Volume += bar.Volume
		bar = cur
	}
	pos, replaced := s.put(bar)
	s.recompute(pos)
	size := len(s.bars)
	s.mu.Unlock()

	s.events.Notify(Event{Key: s.key, Kind: s.kindOf(pos, size, replaced), Bar: bar, Position: pos, Size: size})
	return bar, replaced, nil
}

// AppendBatch stores many bars and recomputes listeners once from the first
// affected position. Bars the timeline rejects are skipped; their errors are
// joined into the returned error.
func (s *Series) AppendBatch(bars []model.Bar) (int, error) {
	normalized := make([]model.Bar, 0, len(bars))
	var errs []error
	for _, b := range bars {
		nb, err := s.normalize(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		normalized = append(normalized, nb)
	}
	if len(normalized) == 0 {
		return 0, errors.Join(errs...)
	}

	s.mu.Lock()
	from := len(s.bars)
	for _, b := range normalized {
		pos, _ := s.put(b)
		from = min(from, pos)
	}
	s.recompute(from)
	size := len(s.bars)
	s.mu.Unlock()

	s.events.Notify(Event{Key: s.key, Kind: Restored, Position: from, Size: size})
	return len(normalized), errors.Join(errs...)
}

// Get returns the bar at timeline index.
func (s *Series) Get(index int) (model.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, found := s.search(index)
	if !found {
		return model.Bar{}, &IndexNotFoundError{Key: s.key, Index: index}
	}
	return s.bars[pos], nil
}

// At returns the bar at position i (0 = oldest).
func (s *Series) At(i int) (model.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.bars) {
		return model.Bar{}, false
	}
	return s.bars[i], true
}

// Last returns the newest bar.
func (s *Series) Last() (model.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return model.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Size returns the number of stored bars.
func (s *Series) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// Iterate returns a lazy sequence over the bars in index order. The sequence
// can be ranged over any number of times; each pass reads the current state
// one bar at a time, so the body may itself mutate the series.
func (s *Series) Iterate() iter.Seq[model.Bar] {
	return func(yield func(model.Bar) bool) {
		for i := 0; ; i++ {
			s.mu.RLock()
			if i >= len(s.bars) {
				s.mu.RUnlock()
				return
			}
			b := s.bars[i]
			s.mu.RUnlock()
			if !yield(b) {
				return
			}
		}
	}
}

// Range returns a copy of the bars with fromIdx <= Index <= toIdx.
// A negative toIdx means no upper bound.
func (s *Series) Range(fromIdx, toIdx int) []model.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, _ := s.search(fromIdx)
	hi := len(s.bars)
	if toIdx >= 0 {
		hi = sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Index > toIdx })
	}
	if lo >= hi {
		return nil
	}
	out := make([]model.Bar, hi-lo)
	copy(out, s.bars[lo:hi])
	return out
}

// Bars returns a copy of all bars.
func (s *Series) Bars() []model.Bar { return s.Range(0, -1) }

// View runs fn with the bar slice under the read lock. fn must not retain
// the slice or call mutating methods.
func (s *Series) View(fn func(bars []model.Bar)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.bars)
}

// Clone returns a deep copy with its own lock. Listeners and subscribers are
// not copied.
func (s *Series) Clone() *Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := New(s.key, s.timeline)
	c.bars = make([]model.Bar, len(s.bars))
	copy(c.bars, s.bars)
	return c
}

// Equal compares key, timeline and bars.
func (s *Series) Equal(o *Series) bool {
	if s == o {
		return true
	}
	if o == nil || s.key != o.key || !s.timeline.Equal(o.timeline) {
		return false
	}
	a, b := s.Bars(), o.Bars()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Attach registers l and runs a full computation for the existing bars.
func (s *Series) Attach(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
	l.Recompute(s.bars, 0)
}

// Detach removes l. Returns false if it was not attached.
func (s *Series) Detach(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.listeners {
		if cur == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Listeners returns the number of attached listeners.
func (s *Series) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Subscribe registers fn for mutation events.
func (s *Series) Subscribe(fn func(Event)) uuid.UUID { return s.events.Subscribe(fn) }

// Unsubscribe removes an event subscription.
func (s *Series) Unsubscribe(id uuid.UUID) bool { return s.events.Unsubscribe(id) }

func (s *Series) normalize(bar model.Bar) (model.Bar, error) {
	idx, err := s.timeline.ToTimelineValue(bar.TS)
	if err != nil {
		return model.Bar{}, fmt.Errorf("series %s: %w", s.key, err)
	}
	start, err := s.timeline.ToTime(idx)
	if err != nil {
		return model.Bar{}, fmt.Errorf("series %s: %w", s.key, err)
	}
	bar.Index = idx
	bar.TS = start
	if bar.Exchange == "" && bar.Token == "" {
		bar.Exchange, bar.Token = s.exchange, s.token
	}
	return bar, nil
}

// search returns the position of index, or its insertion point.
func (s *Series) search(index int) (int, bool) {
	pos := sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Index >= index })
	return pos, pos < len(s.bars) && s.bars[pos].Index == index
}

// put stores bar at its position. Caller holds the write lock.
func (s *Series) put(bar model.Bar) (int, bool) {
	pos, found := s.search(bar.Index)
	if found {
		s.bars[pos] = bar
		return pos, true
	}
	s.bars = append(s.bars, model.Bar{})
	copy(s.bars[pos+1:], s.bars[pos:])
	s.bars[pos] = bar
	return pos, false
}

func (s *Series) recompute(from int) {
	for _, l := range s.listeners {
		l.Recompute(s.bars, from)
	}
}

func (s *Series) kindOf(pos, size int, replaced bool) EventKind {
	switch {
	case replaced:
		return Replaced
	case pos == size-1:
		return Appended
	default:
		return Inserted
	}
}
