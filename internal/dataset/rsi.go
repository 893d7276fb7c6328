package dataset

import (
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// RSI exposes the Wilder RSI of closing prices. Kernel state is kept per
// position so recomputation resumes from the position before the change.
type RSI struct {
	base
	spec   indicator.Spec
	states []indicator.RSIState
}

func newRSI(src *series.Series, spec indicator.Spec) *RSI {
	d := &RSI{spec: spec}
	d.init(src, spec.Name(), spec.Kind.Outputs())
	return d
}

func (d *RSI) Spec() indicator.Spec { return d.spec }

func (d *RSI) Recompute(bars []model.Bar, from int) {
	from = d.truncate(bars, from)
	d.states = d.states[:min(from, len(d.states))]

	k := indicator.NewRSI(d.spec.Period)
	if from > 0 {
		k.Restore(d.states[from-1])
	}
	for i := from; i < len(bars); i++ {
		k.Update(bars[i].Close)
		d.out[0] = append(d.out[0], k.Value())
		d.states = append(d.states, k.State())
	}
}

func (d *RSI) Close() { d.close(d) }
