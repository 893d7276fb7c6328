package timeline

import (
	"fmt"
	"strings"
	"time"
)

// ExtensionPolicy decides what happens to timestamps outside the session.
type ExtensionPolicy int

const (
	// ExtendNone rejects out-of-session timestamps with OutOfSessionError.
	ExtendNone ExtensionPolicy = iota
	// ExtendPrevious snaps to the last period of the preceding session.
	ExtendPrevious
	// ExtendNext snaps to the first period of the following session.
	ExtendNext
)

func (p ExtensionPolicy) String() string {
	switch p {
	case ExtendPrevious:
		return "previous"
	case ExtendNext:
		return "next"
	default:
		return "none"
	}
}

// ParseExtensionPolicy parses "none", "previous" or "next".
func ParseExtensionPolicy(s string) (ExtensionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ExtendNone, nil
	case "previous", "prev":
		return ExtendPrevious, nil
	case "next":
		return ExtendNext, nil
	}
	return ExtendNone, fmt.Errorf("unknown extension policy %q", s)
}

// Timeline maps timestamps onto a dense, session-aware index space.
//
// Index 0 is the first period of the first trading day on or after the
// origin date. Each trading day contributes PeriodsPerDay indices; closed
// time (nights, weekends, holidays) contributes none. A Timeline is
// immutable and safe for concurrent use.
type Timeline struct {
	session   Session
	period    time.Duration
	originDay int64
	perDay    int
	policy    ExtensionPolicy
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithExtension sets the out-of-session policy.
func WithExtension(p ExtensionPolicy) Option {
	return func(tl *Timeline) { tl.policy = p }
}

// New builds a Timeline of the given period over session, anchored at the
// local date of origin.
func New(session Session, period time.Duration, origin time.Time, opts ...Option) (*Timeline, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period %s", ErrInvalidSession, period)
	}
	if session.active == 0 {
		return nil, fmt.Errorf("%w: no trading weekdays", ErrInvalidSession)
	}
	originDay, _ := session.locate(origin)
	length := session.Length()
	perDay := int(length / period)
	if length%period != 0 {
		perDay++
	}
	tl := &Timeline{
		session:   session,
		period:    period,
		originDay: originDay,
		perDay:    perDay,
	}
	for _, o := range opts {
		o(tl)
	}
	return tl, nil
}

func (tl *Timeline) Period() time.Duration { return tl.period }
func (tl *Timeline) Session() Session { return tl.session }
func (tl *Timeline) Policy() ExtensionPolicy { return tl.policy }
func (tl *Timeline) PeriodsPerDay() int { return tl.perDay }
func (tl *Timeline) Origin() time.Time { return tl.session.at(tl.originDay, 0) }

func (tl *Timeline) String() string {
	return fmt.Sprintf("timeline(%s, origin=%s, extend=%s)",
		tl.period, tl.Origin().Format("2006-01-02"), tl.policy)
}

// Equal reports whether both timelines bucket identically.
func (tl *Timeline) Equal(o *Timeline) bool {
	if tl == o {
		return true
	}
	if tl == nil || o == nil {
		return false
	}
	if tl.period != o.period || tl.originDay != o.originDay || tl.policy != o.policy {
		return false
	}
	a, b := tl.session, o.session
	if a.Open != b.Open || a.Close != b.Close || a.Weekdays != b.Weekdays ||
		a.loc().String() != b.loc().String() || len(a.holidays) != len(b.holidays) {
		return false
	}
	for i := range a.holidays {
		if a.holidays[i] != b.holidays[i] {
			return false
		}
	}
	return true
}

// ToTimelineValue returns the index of the period containing ts.
func (tl *Timeline) ToTimelineValue(ts time.Time) (int, error) {
	s := &tl.session
	d, off := s.locate(ts)
	if d < tl.originDay {
		return 0, &OutOfSessionError{TS: ts, Reason: "before timeline origin"}
	}
	trading := s.isTradingDay(d)
	if trading && s.inWindow(off) {
		return tl.index(d, int((off-s.Open)/tl.period)), nil
	}

	switch tl.policy {
	case ExtendPrevious:
		if trading && off >= s.closeOffset() {
			return tl.index(d, tl.perDay-1), nil
		}
		prev, ok := s.prevTradingDay(d, tl.originDay)
		if !ok {
			return 0, &OutOfSessionError{TS: ts, Reason: "no session before timestamp"}
		}
		return tl.index(prev, tl.perDay-1), nil
	case ExtendNext:
		if trading && off < s.Open {
			return tl.index(d, 0), nil
		}
		next, ok := s.nextTradingDay(d)
		if !ok {
			return 0, &OutOfSessionError{TS: ts, Reason: "no session after timestamp"}
		}
		return tl.index(next, 0), nil
	}
	if !trading {
		return 0, &OutOfSessionError{TS: ts, Reason: "not a trading day"}
	}
	return 0, &OutOfSessionError{TS: ts}
}

// ToTime returns the start of the period at index.
func (tl *Timeline) ToTime(index int) (time.Time, error) {
	if index < 0 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	d := tl.nthTradingDay(int64(index / tl.perDay))
	off := tl.session.Open + time.Duration(index%tl.perDay)*tl.period
	return tl.session.at(d, off), nil
}

// ToMillisecond returns the period start at index as Unix milliseconds.
func (tl *Timeline) ToMillisecond(index int) (int64, error) {
	t, err := tl.ToTime(index)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// PeriodStart truncates ts to the start of its period.
func (tl *Timeline) PeriodStart(ts time.Time) (time.Time, error) {
	idx, err := tl.ToTimelineValue(ts)
	if err != nil {
		return time.Time{}, err
	}
	return tl.ToTime(idx)
}

// ContainsDomainValue reports whether ts falls inside a session on or
// after the origin.
func (tl *Timeline) ContainsDomainValue(ts time.Time) bool {
	d, off := tl.session.locate(ts)
	return d >= tl.originDay && tl.session.isTradingDay(d) && tl.session.inWindow(off)
}

// ContainsDomainRange reports whether the whole interval [from, to] lies in
// session. Sessions with a daily close require both ends on the same day;
// full-day sessions require every day in between to be a trading day.
func (tl *Timeline) ContainsDomainRange(from, to time.Time) bool {
	if to.Before(from) || !tl.ContainsDomainValue(from) || !tl.ContainsDomainValue(to) {
		return false
	}
	d0, _ := tl.session.locate(from)
	d1, _ := tl.session.locate(to)
	if !tl.session.FullDay() {
		return d0 == d1
	}
	for d := d0 + 1; d < d1; d++ {
		if !tl.session.isTradingDay(d) {
			return false
		}
	}
	return true
}

func (tl *Timeline) index(d int64, bucket int) int {
	return int(tl.session.tradingDaysBetween(tl.originDay, d))*tl.perDay + bucket
}

// nthTradingDay returns the civil day of the n-th (0-based) trading day
// since the origin.
func (tl *Timeline) nthTradingDay(n int64) int64 {
	s := &tl.session
	d := tl.originDay + (n/int64(s.active)-1)*7
	if d < tl.originDay {
		d = tl.originDay
	}
	c := s.tradingDaysBetween(tl.originDay, d)
	for {
		if s.isTradingDay(d) {
			if c == n {
				return d
			}
			c++
		}
		d++
	}
}
