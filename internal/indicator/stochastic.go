package indicator

// Stochastic calculates the raw stochastic oscillator
// %K = 100 * (close - LL) / (HH - LL) over a window of high/low values.
//
// %K is Unavailable when HH == LL.
type Stochastic struct {
	period  int
	highs   []float64
	lows    []float64
	idx     int
	count   int
	current float64
}

// NewStochastic creates a raw %K kernel over period bars.
func NewStochastic(period int) *Stochastic {
	return &Stochastic{
		period:  period,
		highs:   make([]float64, period),
		lows:    make([]float64, period),
		current: Unavailable,
	}
}

// UpdateHLC feeds the next bar's high, low and close.
func (s *Stochastic) UpdateHLC(high, low, close float64) {
	s.highs[s.idx] = high
	s.lows[s.idx] = low
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count < s.period {
		return
	}
	hh, ll := s.highs[0], s.lows[0]
	for i := 1; i < s.period; i++ {
		hh = max(hh, s.highs[i])
		ll = min(ll, s.lows[i])
	}
	if hh == ll {
		s.current = Unavailable
		return
	}
	s.current = 100 * (close - ll) / (hh - ll)
}

func (s *Stochastic) Value() float64 { return s.current }
func (s *Stochastic) Ready() bool    { return s.count >= s.period }
func (s *Stochastic) Period() int    { return s.period }

func (s *Stochastic) Reset() {
	s.idx = 0
	s.count = 0
	s.current = Unavailable
	for i := range s.highs {
		s.highs[i], s.lows[i] = 0, 0
	}
}
