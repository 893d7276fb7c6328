package dataset

import (
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// Volume exposes bar volume as-is and its simple moving average.
type Volume struct {
	base
	spec indicator.Spec
}

const (
	VolumeRaw = iota
	VolumeMA
)

func newVolume(src *series.Series, spec indicator.Spec) *Volume {
	d := &Volume{spec: spec}
	d.init(src, spec.Name(), spec.Kind.Outputs())
	return d
}

func (d *Volume) Spec() indicator.Spec { return d.spec }

func (d *Volume) Recompute(bars []model.Bar, from int) {
	from = d.truncate(bars, from)
	vols := func(i int) float64 { return float64(bars[i].Volume) }
	for i := from; i < len(bars); i++ {
		d.out[VolumeRaw] = append(d.out[VolumeRaw], vols(i))
	}
	d.out[VolumeMA] = extendWindow(indicator.NewSMA(d.spec.Period), d.out[VolumeMA], vols, d.spec.Period, from, len(bars))
}

func (d *Volume) Close() { d.close(d) }
