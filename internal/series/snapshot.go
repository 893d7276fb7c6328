package series

import (
	"fmt"
	"sort"
	"time"

	"trading-chartsv1/internal/model"
)

// SnapshotVersion is the schema version written by Registry.Snapshot.
const SnapshotVersion = 1

// Snapshot holds the serialized bars of one series.
type Snapshot struct {
	Key  string      `json:"key"`
	Bars []model.Bar `json:"bars"`
}

// RegistrySnapshot holds every series of a registry.
type RegistrySnapshot struct {
	Version int        `json:"version"` // schema version for forward compat
	TakenAt time.Time  `json:"taken_at"`
	Series  []Snapshot `json:"series"`
}

// Snapshot captures the series bars. maxBars > 0 keeps only the newest bars.
func (s *Series) Snapshot(maxBars int) Snapshot {
	bars := s.Bars()
	if maxBars > 0 && len(bars) > maxBars {
		bars = bars[len(bars)-maxBars:]
	}
	return Snapshot{Key: s.key, Bars: bars}
}

// Restore replaces the series contents with snap and recomputes all
// listeners. Bars are re-bucketed so a snapshot taken under a different
// timeline is still consistent; bars outside the timeline are dropped.
func (s *Series) Restore(snap Snapshot) (dropped int, err error) {
	if snap.Key != s.key {
		return 0, fmt.Errorf("restore series %s: snapshot is for %s", s.key, snap.Key)
	}
	bars := make([]model.Bar, 0, len(snap.Bars))
	for _, b := range snap.Bars {
		nb, err := s.normalize(b)
		if err != nil {
			dropped++
			continue
		}
		bars = append(bars, nb)
	}
	// stable so later duplicates win after dedupe
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Index < bars[j].Index })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Index == b.Index {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}

	s.mu.Lock()
	s.bars = out
	s.recompute(0)
	size := len(s.bars)
	s.mu.Unlock()

	s.events.Notify(Event{Key: s.key, Kind: Restored, Size: size})
	return dropped, nil
}

// Snapshot captures every series in the registry.
func (r *Registry) Snapshot(maxBars int) RegistrySnapshot {
	snap := RegistrySnapshot{Version: SnapshotVersion, TakenAt: time.Now().UTC()}
	for _, key := range r.Keys() {
		if s, ok := r.Get(key); ok {
			snap.Series = append(snap.Series, s.Snapshot(maxBars))
		}
	}
	return snap
}

// Restore loads every series of snap, creating missing ones. The callback,
// if non-nil, runs for each series created by the restore before its bars are
// loaded, so listeners can be attached first.
func (r *Registry) Restore(snap RegistrySnapshot, onCreate func(*Series)) (restored, dropped int, err error) {
	if snap.Version > SnapshotVersion {
		return 0, 0, fmt.Errorf("restore registry: unsupported snapshot version %d", snap.Version)
	}
	for _, ss := range snap.Series {
		s, created := r.GetOrCreate(ss.Key)
		if created && onCreate != nil {
			onCreate(s)
		}
		d, err := s.Restore(ss)
		if err != nil {
			return restored, dropped, err
		}
		dropped += d
		restored++
	}
	return restored, dropped, nil
}
