package timeline

import (
	"fmt"
	"sort"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

const (
	day = 24 * time.Hour

	// maxSearchDays bounds calendar walks so a calendar without any
	// trading day cannot loop forever.
	maxSearchDays = 3 * 366
)

// Session describes when a market trades: a time-of-day window in a
// location, the trading weekdays and a holiday set.
//
// Open == Close == 0 describes a full-day (24h) session.
type Session struct {
	Location *time.Location
	Open     time.Duration // offset from local midnight
	Close    time.Duration // offset from local midnight
	Weekdays [7]bool       // indexed by time.Weekday

	holidays []int64 // sorted civil day numbers, trading weekdays only
	active   int
}

// NewSession validates the window and builds a Session.
func NewSession(loc *time.Location, open, close time.Duration, weekdays []time.Weekday, holidays []time.Time) (Session, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := Session{Location: loc, Open: open, Close: close}
	for _, wd := range weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return Session{}, fmt.Errorf("%w: weekday %d", ErrInvalidSession, wd)
		}
		if !s.Weekdays[wd] {
			s.Weekdays[wd] = true
			s.active++
		}
	}
	if s.active == 0 {
		return Session{}, fmt.Errorf("%w: no trading weekdays", ErrInvalidSession)
	}
	if !s.FullDay() && (open < 0 || close > day || open >= close) {
		return Session{}, fmt.Errorf("%w: window %s-%s", ErrInvalidSession, open, close)
	}

	seen := make(map[int64]bool, len(holidays))
	for _, h := range holidays {
		d := civilDay(h.Year(), h.Month(), h.Day())
		if seen[d] || !s.Weekdays[weekdayOf(d)] {
			continue
		}
		seen[d] = true
		s.holidays = append(s.holidays, d)
	}
	sort.Slice(s.holidays, func(i, j int) bool { return s.holidays[i] < s.holidays[j] })
	return s, nil
}

// FullDay reports whether the session trades around the clock on trading days.
func (s *Session) FullDay() bool { return s.Open == 0 && s.Close == 0 }

// Length returns the duration of one session.
func (s *Session) Length() time.Duration { return s.closeOffset() - s.Open }

// IsHoliday returns true if t's local date is a listed holiday.
func (s *Session) IsHoliday(t time.Time) bool {
	d, _ := s.locate(t)
	return s.isHoliday(d)
}

// IsTradingDay returns true if t's local date is a trading weekday and not a holiday.
func (s *Session) IsTradingDay(t time.Time) bool {
	d, _ := s.locate(t)
	return s.isTradingDay(d)
}

// IsOpen returns true if t falls within the trading window of a trading day.
func (s *Session) IsOpen(t time.Time) bool {
	d, off := s.locate(t)
	return s.isTradingDay(d) && s.inWindow(off)
}

// OpenOf returns the session open on t's local date.
func (s *Session) OpenOf(t time.Time) time.Time {
	d, _ := s.locate(t)
	return s.at(d, s.Open)
}

// CloseOf returns the session close on t's local date.
func (s *Session) CloseOf(t time.Time) time.Time {
	d, _ := s.locate(t)
	return s.at(d, s.closeOffset())
}

// NextOpen returns the next session open strictly after t.
// If t is before today's open on a trading day, returns today's open.
// Returns the zero time if no trading day exists within the search horizon.
func (s *Session) NextOpen(t time.Time) time.Time {
	d, off := s.locate(t)
	if s.isTradingDay(d) && off < s.Open {
		return s.at(d, s.Open)
	}
	next, ok := s.nextTradingDay(d)
	if !ok {
		return time.Time{}
	}
	return s.at(next, s.Open)
}

// TimeUntilClose returns the duration until the close of the session t is in.
// Returns 0 if the session is not open at t.
func (s *Session) TimeUntilClose(t time.Time) time.Duration {
	if !s.IsOpen(t) {
		return 0
	}
	return s.CloseOf(t).Sub(t)
}

// StatusString returns a human-readable market status.
func (s *Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(s.TimeUntilClose(t)))
	}
	next := s.NextOpen(t)
	if next.IsZero() {
		return "Market Closed"
	}
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func (s *Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s *Session) closeOffset() time.Duration {
	if s.FullDay() {
		return day
	}
	return s.Close
}

func (s *Session) inWindow(off time.Duration) bool {
	return off >= s.Open && off < s.closeOffset()
}

// locate returns the civil day number of t's local date and the wall-clock
// offset from local midnight.
func (s *Session) locate(t time.Time) (int64, time.Duration) {
	lt := t.In(s.loc())
	off := time.Duration(lt.Hour())*time.Hour +
		time.Duration(lt.Minute())*time.Minute +
		time.Duration(lt.Second())*time.Second +
		time.Duration(lt.Nanosecond())
	return civilDay(lt.Year(), lt.Month(), lt.Day()), off
}

// at builds the wall-clock instant off after local midnight of civil day d.
func (s *Session) at(d int64, off time.Duration) time.Time {
	y, m, dd := civilDate(d)
	return time.Date(y, m, dd, 0, 0, 0, int(off), s.loc())
}

func (s *Session) isHoliday(d int64) bool {
	i := sort.Search(len(s.holidays), func(i int) bool { return s.holidays[i] >= d })
	return i < len(s.holidays) && s.holidays[i] == d
}

func (s *Session) isTradingDay(d int64) bool {
	return s.Weekdays[weekdayOf(d)] && !s.isHoliday(d)
}

// tradingDaysBetween counts trading days in [from, to).
func (s *Session) tradingDaysBetween(from, to int64) int64 {
	if to <= from {
		return 0
	}
	weeks := (to - from) / 7
	count := weeks * int64(s.active)
	for d := from + weeks*7; d < to; d++ {
		if s.Weekdays[weekdayOf(d)] {
			count++
		}
	}
	lo := sort.Search(len(s.holidays), func(i int) bool { return s.holidays[i] >= from })
	hi := sort.Search(len(s.holidays), func(i int) bool { return s.holidays[i] >= to })
	return count - int64(hi-lo)
}

func (s *Session) nextTradingDay(d int64) (int64, bool) {
	for i := 1; i <= maxSearchDays; i++ {
		if s.isTradingDay(d + int64(i)) {
			return d + int64(i), true
		}
	}
	return 0, false
}

func (s *Session) prevTradingDay(d, floor int64) (int64, bool) {
	for c := d - 1; c >= floor && d-c <= maxSearchDays; c-- {
		if s.isTradingDay(c) {
			return c, true
		}
	}
	return 0, false
}

// civilDay returns the number of days since 1970-01-01 for a calendar date.
func civilDay(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func civilDate(d int64) (int, time.Month, int) {
	return time.Unix(d*86400, 0).UTC().Date()
}

// weekdayOf maps a civil day number to its weekday; day 0 was a Thursday.
func weekdayOf(d int64) time.Weekday {
	return time.Weekday(((d+4)%7 + 7) % 7)
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
