package timeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ist(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, IST)
}

func nse5m(t *testing.T, opts ...Option) *Timeline {
	t.Helper()
	tl, err := New(NSE(), 5*time.Minute, ist(2026, 1, 1, 0, 0, 0), opts...)
	require.NoError(t, err)
	return tl
}

func TestToTimelineValue_NSE(t *testing.T) {
	tl := nse5m(t)
	require.Equal(t, 75, tl.PeriodsPerDay())

	tests := []struct {
		name string
		ts   time.Time
		want int
	}{
		{"first period", ist(2026, 1, 1, 9, 15, 0), 0},
		{"second period", ist(2026, 1, 1, 9, 20, 0), 1},
		{"mid period", ist(2026, 1, 1, 9, 22, 30), 1},
		{"last period", ist(2026, 1, 1, 15, 29, 59), 74},
		{"next day", ist(2026, 1, 2, 9, 15, 0), 75},
		{"after weekend", ist(2026, 1, 5, 9, 15, 0), 150},
		// 17 trading days between Jan 1 and Jan 27; Jan 26 is Republic Day.
		{"after holiday", ist(2026, 1, 27, 9, 15, 0), 17 * 75},
		{"utc input", time.Date(2026, 1, 1, 3, 45, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tl.ToTimelineValue(tt.ts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToTimelineValue_OutOfSession(t *testing.T) {
	tl := nse5m(t)

	tests := []struct {
		name string
		ts   time.Time
	}{
		{"before open", ist(2026, 1, 1, 9, 14, 59)},
		{"at close", ist(2026, 1, 1, 15, 30, 0)},
		{"saturday", ist(2026, 1, 3, 10, 0, 0)},
		{"holiday", ist(2026, 1, 26, 10, 0, 0)},
		{"before origin", ist(2025, 12, 31, 10, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tl.ToTimelineValue(tt.ts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOutOfSession))
			var oos *OutOfSessionError
			require.True(t, errors.As(err, &oos))
			assert.True(t, oos.TS.Equal(tt.ts))
			assert.False(t, tl.ContainsDomainValue(tt.ts))
		})
	}
}

func TestBucketingIsIdempotent(t *testing.T) {
	for _, period := range []time.Duration{time.Minute, 5 * time.Minute, time.Hour, 24 * time.Hour} {
		tl, err := New(NSE(), period, ist(2026, 1, 1, 0, 0, 0))
		require.NoError(t, err)

		for ts := ist(2026, 1, 1, 0, 0, 0); ts.Before(ist(2026, 1, 10, 0, 0, 0)); ts = ts.Add(7*time.Minute + 13*time.Second) {
			if !tl.ContainsDomainValue(ts) {
				continue
			}
			idx, err := tl.ToTimelineValue(ts)
			require.NoError(t, err)

			start, err := tl.ToTime(idx)
			require.NoError(t, err)
			assert.False(t, start.After(ts), "period %s: start %s after %s", period, start, ts)
			assert.True(t, ts.Sub(start) < period, "period %s: %s not in period starting %s", period, ts, start)

			again, err := tl.ToTimelineValue(start)
			require.NoError(t, err)
			assert.Equal(t, idx, again)

			ms, err := tl.ToMillisecond(idx)
			require.NoError(t, err)
			assert.Equal(t, start.UnixMilli(), ms)
		}
	}
}

func TestToTime_RoundTripFarFromOrigin(t *testing.T) {
	tl := nse5m(t)
	ts := ist(2026, 12, 31, 15, 25, 0)
	idx, err := tl.ToTimelineValue(ts)
	require.NoError(t, err)

	back, err := tl.ToTime(idx)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))
}

func TestToTime_NegativeIndex(t *testing.T) {
	tl := nse5m(t)
	_, err := tl.ToTime(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = tl.ToMillisecond(-5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestPartialLastPeriod(t *testing.T) {
	// 375 minute session / 60 minute period = 7 buckets, last one 15:15-15:30.
	tl, err := New(NSE(), time.Hour, ist(2026, 1, 1, 0, 0, 0))
	require.NoError(t, err)
	require.Equal(t, 7, tl.PeriodsPerDay())

	idx, err := tl.ToTimelineValue(ist(2026, 1, 1, 15, 20, 0))
	require.NoError(t, err)
	assert.Equal(t, 6, idx)

	start, err := tl.ToTime(6)
	require.NoError(t, err)
	assert.True(t, start.Equal(ist(2026, 1, 1, 15, 15, 0)))
}

func TestExtensionPolicies(t *testing.T) {
	prev := nse5m(t, WithExtension(ExtendPrevious))
	next := nse5m(t, WithExtension(ExtendNext))

	tests := []struct {
		name     string
		ts       time.Time
		wantPrev int
		wantNext int
	}{
		{"after close", ist(2026, 1, 1, 16, 0, 0), 74, 75},
		{"saturday", ist(2026, 1, 3, 12, 0, 0), 149, 150},
		{"before open", ist(2026, 1, 2, 8, 0, 0), 74, 75},
		{"in session", ist(2026, 1, 2, 9, 15, 0), 75, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prev.ToTimelineValue(tt.ts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrev, got)

			got, err = next.ToTimelineValue(tt.ts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNext, got)
		})
	}

	t.Run("previous before first session", func(t *testing.T) {
		_, err := prev.ToTimelineValue(ist(2026, 1, 1, 8, 0, 0))
		assert.ErrorIs(t, err, ErrOutOfSession)
	})
}

func TestParseExtensionPolicy(t *testing.T) {
	for in, want := range map[string]ExtensionPolicy{"": ExtendNone, "none": ExtendNone, "Previous": ExtendPrevious, "next": ExtendNext} {
		got, err := ParseExtensionPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseExtensionPolicy("sideways")
	assert.Error(t, err)
}

func TestFullDaySession(t *testing.T) {
	tl, err := New(AlwaysOpen(time.UTC), time.Hour, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 24, tl.PeriodsPerDay())

	idx, err := tl.ToTimelineValue(time.Date(2026, 1, 3, 5, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2*24+5, idx)

	from := time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 4, 2, 0, 0, 0, time.UTC)
	assert.True(t, tl.ContainsDomainRange(from, to))
}

func TestContainsDomainRange(t *testing.T) {
	tl := nse5m(t)

	tests := []struct {
		name     string
		from, to time.Time
		want     bool
	}{
		{"same session", ist(2026, 1, 2, 9, 30, 0), ist(2026, 1, 2, 15, 0, 0), true},
		{"spans close", ist(2026, 1, 2, 15, 0, 0), ist(2026, 1, 5, 9, 30, 0), false},
		{"end after close", ist(2026, 1, 2, 9, 30, 0), ist(2026, 1, 2, 15, 30, 0), false},
		{"reversed", ist(2026, 1, 2, 15, 0, 0), ist(2026, 1, 2, 9, 30, 0), false},
		{"holiday", ist(2026, 1, 26, 10, 0, 0), ist(2026, 1, 26, 11, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tl.ContainsDomainRange(tt.from, tt.to))
		})
	}
}

func TestSession_NSE(t *testing.T) {
	s := NSE()

	assert.True(t, s.IsOpen(ist(2026, 1, 2, 10, 0, 0)))
	assert.False(t, s.IsOpen(ist(2026, 1, 2, 15, 30, 0)))
	assert.True(t, s.IsHoliday(ist(2026, 10, 2, 12, 0, 0)))
	assert.False(t, s.IsTradingDay(ist(2026, 1, 4, 12, 0, 0)))

	// Friday after close opens Monday.
	assert.True(t, s.NextOpen(ist(2026, 1, 2, 16, 0, 0)).Equal(ist(2026, 1, 5, 9, 15, 0)))
	// Before open returns today's open.
	assert.True(t, s.NextOpen(ist(2026, 1, 2, 8, 0, 0)).Equal(ist(2026, 1, 2, 9, 15, 0)))
	assert.True(t, s.CloseOf(ist(2026, 1, 2, 10, 0, 0)).Equal(ist(2026, 1, 2, 15, 30, 0)))
	assert.Equal(t, 30*time.Minute, s.TimeUntilClose(ist(2026, 1, 2, 15, 0, 0)))
	assert.Contains(t, s.StatusString(ist(2026, 1, 2, 16, 0, 0)), "Market Closed")
}

func TestNewSession_Invalid(t *testing.T) {
	_, err := NewSession(IST, 10*time.Hour, 9*time.Hour, weekdays, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = NewSession(IST, 9*time.Hour, 10*time.Hour, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = New(NSE(), 0, ist(2026, 1, 1, 0, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestLoadCalendar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	content := `location: IST
open: "09:15"
close: "15:30"
weekdays: [mon, tue, wed, thu, friday]
holidays:
  - "2026-01-26"
  - "2026-03-14"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadCalendar(path)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+15*time.Minute, s.Open)
	assert.Equal(t, 15*time.Hour+30*time.Minute, s.Close)
	assert.True(t, s.IsHoliday(ist(2026, 1, 26, 12, 0, 0)))
	assert.False(t, s.IsTradingDay(ist(2026, 1, 3, 12, 0, 0)))
	assert.True(t, s.IsOpen(ist(2026, 1, 2, 12, 0, 0)))

	t.Run("bad weekday", func(t *testing.T) {
		_, err := Calendar{Weekdays: []string{"funday"}}.Session()
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
	t.Run("bad clock", func(t *testing.T) {
		_, err := Calendar{Open: "9h", Close: "10:00"}.Session()
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCalendar(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDSTWallClock(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	s, err := NewSession(ny, 9*time.Hour+30*time.Minute, 16*time.Hour, weekdays, nil)
	require.NoError(t, err)
	tl, err := New(s, 30*time.Minute, time.Date(2026, 3, 2, 0, 0, 0, 0, ny))
	require.NoError(t, err)

	// DST starts 2026-03-08; the session still opens at 09:30 local.
	before := time.Date(2026, 3, 6, 9, 30, 0, 0, ny)
	after := time.Date(2026, 3, 9, 9, 30, 0, 0, ny)
	i0, err := tl.ToTimelineValue(before)
	require.NoError(t, err)
	i1, err := tl.ToTimelineValue(after)
	require.NoError(t, err)
	assert.Equal(t, tl.PeriodsPerDay(), i1-i0)

	back, err := tl.ToTime(i1)
	require.NoError(t, err)
	assert.True(t, back.Equal(after))
}

func TestTimelineEqual(t *testing.T) {
	a := nse5m(t)
	b := nse5m(t)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(nse5m(t, WithExtension(ExtendNext))))
	assert.False(t, a.Equal(nil))
}
