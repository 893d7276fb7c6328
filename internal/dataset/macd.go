package dataset

import (
	"math"

	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// MACD exposes macd = EMA(fast) - EMA(slow), its signal EMA and the histogram.
type MACD struct {
	base
	spec indicator.Spec
	fast []float64
	slow []float64
}

const (
	MACDLine = iota
	MACDSignal
	MACDHistogram
)

func newMACD(src *series.Series, spec indicator.Spec) *MACD {
	d := &MACD{spec: spec}
	d.init(src, spec.Name(), spec.Kind.Outputs())
	return d
}

func (d *MACD) Spec() indicator.Spec { return d.spec }

func (d *MACD) Recompute(bars []model.Bar, from int) {
	from = d.truncate(bars, from)
	to := len(bars)
	d.fast = d.fast[:min(from, len(d.fast))]
	d.slow = d.slow[:min(from, len(d.slow))]

	closes := func(i int) float64 { return bars[i].Close }
	d.fast = extendResumable(indicator.NewEMA(d.spec.Fast), d.fast, closes, from, to)
	d.slow = extendResumable(indicator.NewEMA(d.spec.Slow), d.slow, closes, from, to)

	line := d.out[MACDLine]
	for i := from; i < to; i++ {
		line = append(line, d.fast[i]-d.slow[i]) // NaN until slow is seeded
	}
	d.out[MACDLine] = line

	// The signal EMA runs over available macd values only.
	first := d.spec.Slow - 1
	sig := indicator.NewEMA(d.spec.Signal)
	signal := d.out[MACDSignal]
	if from > 0 && !math.IsNaN(signal[from-1]) {
		sig.Resume(from-first, signal[from-1])
	} else {
		for i := first; i < from; i++ {
			sig.Update(line[i])
		}
	}
	for i := from; i < to; i++ {
		if math.IsNaN(line[i]) {
			signal = append(signal, Unavailable)
			continue
		}
		sig.Update(line[i])
		signal = append(signal, sig.Value())
	}
	d.out[MACDSignal] = signal

	hist := d.out[MACDHistogram]
	for i := from; i < to; i++ {
		hist = append(hist, line[i]-signal[i])
	}
	d.out[MACDHistogram] = hist
}

func (d *MACD) Close() { d.close(d) }
