package series

import (
	"fmt"
	"strings"

	"trading-chartsv1/internal/model"
)

// Mode selects how the Aggregator folds a bar into an existing period.
type Mode int

const (
	// ModeReplace stores each bar as the full period bar.
	ModeReplace Mode = iota
	// ModeMerge treats incoming bars as sub-period updates of the forming bar.
	ModeMerge
)

func (m Mode) String() string {
	if m == ModeMerge {
		return "merge"
	}
	return "replace"
}

// ParseMode parses "replace" or "merge".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return ModeReplace, nil
	case "merge":
		return ModeMerge, nil
	}
	return ModeReplace, fmt.Errorf("unknown feed mode %q", s)
}

// Result describes what an Aggregator did with a bar.
type Result struct {
	Bar      model.Bar // the stored bar, after merging
	Replaced bool
}

// Aggregator routes feed bars into series, merging sub-period updates and
// rejecting bars that arrive too late.
type Aggregator struct {
	Mode Mode

	// StaleTolerance is how many periods behind the newest index a bar may
	// land. Zero accepts any late bar.
	StaleTolerance int

	// OnStale is called when a bar is rejected as stale.
	OnStale func(bar model.Bar, newest int)
}

// Add stores bar in s according to the aggregator mode.
func (a *Aggregator) Add(s *Series, bar model.Bar) (Result, error) {
	if a.StaleTolerance > 0 {
		if last, ok := s.Last(); ok {
			idx, err := s.Timeline().ToTimelineValue(bar.TS)
			if err != nil {
				return Result{}, fmt.Errorf("series %s: %w", s.Key(), err)
			}
			if idx < last.Index-a.StaleTolerance {
				if a.OnStale != nil {
					a.OnStale(bar, last.Index)
				}
				return Result{}, fmt.Errorf("series %s: %w: index %d, newest %d", s.Key(), ErrStaleBar, idx, last.Index)
			}
		}
	}

	if a.Mode == ModeMerge {
		stored, replaced, err := s.Merge(bar)
		if err != nil {
			return Result{}, err
		}
		return Result{Bar: stored, Replaced: replaced}, nil
	}

	idx, replaced, err := s.Append(bar)
	if err != nil {
		return Result{}, err
	}
	stored, err := s.Get(idx)
	if err != nil {
		return Result{}, err
	}
	return Result{Bar: stored, Replaced: replaced}, nil
}
