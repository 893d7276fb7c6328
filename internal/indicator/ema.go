package indicator

// EMA calculates Exponential Moving Average.
// O(1) per update. The first value is seeded with SMA(period).
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates an EMA with the standard smoothing 2/(period+1).
func NewEMA(period int) *EMA {
	return NewEMAWithAlpha(period, 2.0/float64(period+1))
}

// NewEMAWithAlpha creates an EMA with an explicit smoothing factor in (0,1].
func NewEMAWithAlpha(period int, alpha float64) *EMA {
	return &EMA{
		period:     period,
		multiplier: alpha,
		current:    Unavailable,
	}
}

func (e *EMA) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64      { return e.current }
func (e *EMA) Ready() bool         { return e.count >= e.period }
func (e *EMA) Period() int         { return e.period }
func (e *EMA) Multiplier() float64 { return e.multiplier }

// Resume continues a seeded EMA from a previously emitted value. count is the
// number of inputs that produced current and must be at least the period.
func (e *EMA) Resume(count int, current float64) {
	e.count = max(count, e.period)
	e.current = current
	e.sum = 0
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = Unavailable
	e.count = 0
	e.sum = 0
}
