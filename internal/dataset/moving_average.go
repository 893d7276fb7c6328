package dataset

import (
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// MovingAverage is an SMA, EMA or SMMA of closing prices.
type MovingAverage struct {
	base
	spec indicator.Spec
}

func newMovingAverage(src *series.Series, spec indicator.Spec) *MovingAverage {
	d := &MovingAverage{spec: spec}
	d.init(src, spec.Name(), spec.Kind.Outputs())
	return d
}

func (d *MovingAverage) Spec() indicator.Spec { return d.spec }

func (d *MovingAverage) Recompute(bars []model.Bar, from int) {
	from = d.truncate(bars, from)
	closes := func(i int) float64 { return bars[i].Close }
	n := d.spec.Period

	switch d.spec.Kind {
	case indicator.KindSMA:
		d.out[0] = extendWindow(indicator.NewSMA(n), d.out[0], closes, n, from, len(bars))
	case indicator.KindEMA:
		d.out[0] = extendResumable(indicator.NewEMAWithAlpha(n, d.spec.Alpha()), d.out[0], closes, from, len(bars))
	case indicator.KindSMMA:
		d.out[0] = extendResumable(indicator.NewSMMA(n), d.out[0], closes, from, len(bars))
	}
}

func (d *MovingAverage) Close() { d.close(d) }
