package indicator

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA kernel with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period, current: Unavailable}
}

func (s *SMMA) Update(v float64) {
	s.count++

	if s.count <= s.period {
		// Accumulate for initial SMA seed
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + v) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }
func (s *SMMA) Period() int    { return s.period }

// Resume continues a seeded SMMA from a previously emitted value.
func (s *SMMA) Resume(count int, current float64) {
	s.count = max(count, s.period)
	s.current = current
	s.sum = 0
}

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = Unavailable
}
