package timeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NSE holidays for 2026.
// Source: NSE India official holiday list.
var nseHolidays2026 = []struct {
	month time.Month
	day   int
}{
	{time.January, 26},  // Republic Day
	{time.February, 17}, // Mahashivratri (tentative)
	{time.March, 14},    // Holi
	{time.March, 31},    // Id-ul-Fitr (Eid) (tentative)
	{time.April, 2},     // Ram Navami (tentative)
	{time.April, 6},     // Mahavir Jayanti
	{time.April, 10},    // Good Friday
	{time.April, 14},    // Dr. Ambedkar Jayanti
	{time.May, 1},       // Maharashtra Day
	{time.June, 7},      // Bakrid / Eid ul-Adha (tentative)
	{time.July, 6},      // Muharram (tentative)
	{time.August, 15},   // Independence Day
	{time.August, 16},   // Janmashtami (tentative)
	{time.September, 5}, // Milad-un-Nabi (tentative)
	{time.October, 2},   // Mahatma Gandhi Jayanti
	{time.October, 20},  // Dussehra
	{time.October, 21},  // Dussehra (tentative)
	{time.November, 5},  // Diwali / Lakshmi Puja (tentative)
	{time.November, 6},  // Diwali Balipratipada (tentative)
	{time.November, 7},  // Bhai Dooj (tentative)
	{time.November, 19}, // Guru Nanak Jayanti
	{time.December, 25}, // Christmas
}

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// NSE returns the NSE equity cash session: IST 09:15-15:30, Mon-Fri,
// with the 2026 holiday list.
func NSE() Session {
	hs := make([]time.Time, 0, len(nseHolidays2026))
	for _, h := range nseHolidays2026 {
		hs = append(hs, time.Date(2026, h.month, h.day, 0, 0, 0, 0, IST))
	}
	s, err := NewSession(IST, 9*time.Hour+15*time.Minute, 15*time.Hour+30*time.Minute, weekdays, hs)
	if err != nil {
		panic(err) // static preset
	}
	return s
}

// AlwaysOpen returns a full-day, seven-day session in loc.
func AlwaysOpen(loc *time.Location) Session {
	all := []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday}
	s, err := NewSession(loc, 0, 0, all, nil)
	if err != nil {
		panic(err)
	}
	return s
}

// Calendar is the textual form of a Session, as found in YAML calendar
// files and in the service configuration.
type Calendar struct {
	Location string   `yaml:"location" mapstructure:"location"`
	Open     string   `yaml:"open" mapstructure:"open"`
	Close    string   `yaml:"close" mapstructure:"close"`
	Weekdays []string `yaml:"weekdays" mapstructure:"weekdays"`
	Holidays []string `yaml:"holidays" mapstructure:"holidays"`
}

// LoadCalendar reads a YAML calendar file and builds its Session.
//
//	location: Asia/Kolkata
//	open: "09:15"
//	close: "15:30"
//	weekdays: [mon, tue, wed, thu, fri]
//	holidays: ["2026-01-26", "2026-03-14"]
func LoadCalendar(path string) (Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Session{}, fmt.Errorf("read calendar %s: %w", path, err)
	}
	var c Calendar
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Session{}, fmt.Errorf("parse calendar %s: %w", path, err)
	}
	return c.Session()
}

// Session converts the calendar into a Session. Empty fields default to
// UTC, a full-day window and Mon-Fri.
func (c Calendar) Session() (Session, error) {
	loc := time.UTC
	switch c.Location {
	case "", "UTC":
	case "IST":
		loc = IST
	default:
		l, err := time.LoadLocation(c.Location)
		if err != nil {
			return Session{}, fmt.Errorf("%w: location %q: %v", ErrInvalidSession, c.Location, err)
		}
		loc = l
	}

	open, err := parseClock(c.Open)
	if err != nil {
		return Session{}, err
	}
	close, err := parseClock(c.Close)
	if err != nil {
		return Session{}, err
	}

	wds := weekdays
	if len(c.Weekdays) > 0 {
		wds = make([]time.Weekday, 0, len(c.Weekdays))
		for _, w := range c.Weekdays {
			wd, err := parseWeekday(w)
			if err != nil {
				return Session{}, err
			}
			wds = append(wds, wd)
		}
	}

	hs := make([]time.Time, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(h), loc)
		if err != nil {
			return Session{}, fmt.Errorf("%w: holiday %q", ErrInvalidSession, h)
		}
		hs = append(hs, t)
	}
	return NewSession(loc, open, close, wds, hs)
}

// parseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
// "24:00" is accepted as a close time.
func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidSession, s)
	}
	var d time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("%w: clock %q", ErrInvalidSession, s)
		}
		d += time.Duration(n) * units[i]
	}
	if d > day {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidSession, s)
	}
	return d, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if len(key) >= 3 {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			name := strings.ToLower(wd.String())
			if key == name || key == name[:3] {
				return wd, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: weekday %q", ErrInvalidSession, s)
}
