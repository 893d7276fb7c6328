package dataset

import (
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// Stochastic exposes %K (optionally smoothed) and %D.
type Stochastic struct {
	base
	spec indicator.Spec
	raw  []float64 // unsmoothed %K, aligned with the outputs
}

const (
	StochasticK = iota
	StochasticD
)

func newStochastic(src *series.Series, spec indicator.Spec) *Stochastic {
	d := &Stochastic{spec: spec}
	d.init(src, spec.Name(), spec.Kind.Outputs())
	return d
}

func (d *Stochastic) Spec() indicator.Spec { return d.spec }

func (d *Stochastic) Recompute(bars []model.Bar, from int) {
	from = d.truncate(bars, from)
	d.raw = d.raw[:min(from, len(d.raw))]

	k := indicator.NewStochastic(d.spec.Period)
	update := func(i int) { k.UpdateHLC(bars[i].High, bars[i].Low, bars[i].Close) }
	warmWindow(update, d.spec.Period, from)
	for i := from; i < len(bars); i++ {
		update(i)
		d.raw = append(d.raw, k.Value())
	}

	if d.spec.KSmoothing <= 1 {
		d.out[StochasticK] = append(d.out[StochasticK], d.raw[from:]...)
	} else {
		d.out[StochasticK] = extendMean(d.out[StochasticK], d.raw, d.spec.KSmoothing, from, len(bars))
	}
	d.out[StochasticD] = extendMean(d.out[StochasticD], d.out[StochasticK], d.spec.DPeriod, from, len(bars))
}

func (d *Stochastic) Close() { d.close(d) }
