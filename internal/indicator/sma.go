package indicator

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA kernel with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period:  period,
		buf:     make([]float64, period),
		current: Unavailable,
	}
}

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }
func (s *SMA) Period() int    { return s.period }

// Window returns the values currently in the window, oldest first.
func (s *SMA) Window() []float64 {
	n := min(s.count, s.period)
	out := make([]float64, 0, n)
	start := s.idx - n
	if start < 0 {
		start += s.period
	}
	for i := 0; i < n; i++ {
		out = append(out, s.buf[(start+i)%s.period])
	}
	return out
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = Unavailable
	for i := range s.buf {
		s.buf[i] = 0
	}
}
