package indicator

import "math"

// Bollinger calculates Bollinger Bands: the SMA of the window plus and minus
// k population standard deviations.
type Bollinger struct {
	*SMA
	k      float64
	stddev float64
}

// NewBollinger creates Bollinger Bands over period values with k deviations.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{SMA: NewSMA(period), k: k, stddev: Unavailable}
}

func (b *Bollinger) Update(v float64) {
	b.SMA.Update(v)
	if !b.Ready() {
		return
	}
	mean := b.SMA.Value()
	var ss float64
	for _, x := range b.buf {
		d := x - mean
		ss += d * d
	}
	b.stddev = math.Sqrt(ss / float64(b.period))
}

// Middle returns the middle band (the SMA).
func (b *Bollinger) Middle() float64 { return b.SMA.Value() }

// Upper returns middle + k*stddev.
func (b *Bollinger) Upper() float64 {
	if !b.Ready() {
		return Unavailable
	}
	return b.Middle() + b.k*b.stddev
}

// Lower returns middle - k*stddev.
func (b *Bollinger) Lower() float64 {
	if !b.Ready() {
		return Unavailable
	}
	return b.Middle() - b.k*b.stddev
}

// StdDev returns the population standard deviation of the window.
func (b *Bollinger) StdDev() float64 { return b.stddev }

func (b *Bollinger) Reset() {
	b.SMA.Reset()
	b.stddev = Unavailable
}
