package dataset

import (
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// Bollinger exposes upper, middle and lower bands of closing prices.
type Bollinger struct {
	base
	spec indicator.Spec
}

const (
	BollingerUpper = iota
	BollingerMiddle
	BollingerLower
)

func newBollinger(src *series.Series, spec indicator.Spec) *Bollinger {
	d := &Bollinger{spec: spec}
	d.init(src, spec.Name(), spec.Kind.Outputs())
	return d
}

func (d *Bollinger) Spec() indicator.Spec { return d.spec }

func (d *Bollinger) Recompute(bars []model.Bar, from int) {
	from = d.truncate(bars, from)
	k := indicator.NewBollinger(d.spec.Period, d.spec.StdDevs)
	warmWindow(func(i int) { k.Update(bars[i].Close) }, d.spec.Period, from)
	for i := from; i < len(bars); i++ {
		k.Update(bars[i].Close)
		d.out[BollingerUpper] = append(d.out[BollingerUpper], k.Upper())
		d.out[BollingerMiddle] = append(d.out[BollingerMiddle], k.Middle())
		d.out[BollingerLower] = append(d.out[BollingerLower], k.Lower())
	}
}

func (d *Bollinger) Close() { d.close(d) }
