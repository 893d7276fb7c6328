package dataset

import (
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// OHLC exposes the raw bar columns through the dataset accessor.
type OHLC struct {
	base
}

const (
	OHLCOpen = iota
	OHLCHigh
	OHLCLow
	OHLCClose
	OHLCVolume
)

// NewOHLC creates an OHLC dataset and attaches it to src.
func NewOHLC(src *series.Series) *OHLC {
	d := &OHLC{}
	d.init(src, "OHLC", []string{"open", "high", "low", "close", "volume"})
	src.Attach(d)
	return d
}

func (d *OHLC) Recompute(bars []model.Bar, from int) {
	from = d.truncate(bars, from)
	for _, b := range bars[from:] {
		d.out[OHLCOpen] = append(d.out[OHLCOpen], b.Open)
		d.out[OHLCHigh] = append(d.out[OHLCHigh], b.High)
		d.out[OHLCLow] = append(d.out[OHLCLow], b.Low)
		d.out[OHLCClose] = append(d.out[OHLCClose], b.Close)
		d.out[OHLCVolume] = append(d.out[OHLCVolume], float64(b.Volume))
	}
}

func (d *OHLC) Close() { d.close(d) }
