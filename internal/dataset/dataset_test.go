package dataset

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
	"trading-chartsv1/internal/timeline"
)

func newSeries(t *testing.T) *series.Series {
	t.Helper()
	tl, err := timeline.New(timeline.NSE(), 5*time.Minute, time.Date(2026, 1, 1, 0, 0, 0, 0, timeline.IST))
	require.NoError(t, err)
	return series.New("NSE:3045", tl)
}

// at returns the n-th five minute period of 2026-01-02 (timeline index 75+n).
func at(n int) time.Time {
	return time.Date(2026, 1, 2, 9, 15, 0, 0, timeline.IST).Add(time.Duration(n) * 5 * time.Minute)
}

func closeBar(n int, close float64) model.Bar {
	return model.Bar{TS: at(n), Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 100}
}

// wave is a deterministic non-trivial price path.
func wave(n int, shift float64) model.Bar {
	c := 100 + 10*math.Sin(float64(n)/3) + float64(n)*0.1 + shift
	return model.Bar{
		TS:     at(n),
		Open:   c - 0.5,
		High:   c + float64(n%4),
		Low:    c - float64(n%3),
		Close:  c,
		Volume: int64(1000 + 37*n),
	}
}

func mustNew(t *testing.T, s *series.Series, raw string) Indicator {
	t.Helper()
	d, err := Parse(s, raw)
	require.NoError(t, err)
	return d
}

func values(d Dataset, s int) []float64 {
	out := make([]float64, d.ItemCount(s))
	for i := range out {
		out[i] = d.GetValueAsDouble(s, i)
	}
	return out
}

func assertSameValues(t *testing.T, want, got Dataset) {
	t.Helper()
	require.Equal(t, want.SeriesCount(), got.SeriesCount())
	for s := 0; s < want.SeriesCount(); s++ {
		w, g := values(want, s), values(got, s)
		require.Len(t, g, len(w), "%s/%s", want.Name(), want.SeriesKey(s))
		for i := range w {
			if math.IsNaN(w[i]) {
				assert.True(t, math.IsNaN(g[i]), "%s/%s[%d]: want unavailable, got %v", want.Name(), want.SeriesKey(s), i, g[i])
				continue
			}
			assert.InDelta(t, w[i], g[i], 1e-9, "%s/%s[%d]", want.Name(), want.SeriesKey(s), i)
		}
	}
}

func TestSMA3_SentinelThenMeans(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "SMA:3")

	for i, c := range []float64{10, 12, 14, 16} {
		_, _, err := s.Append(closeBar(i, c))
		require.NoError(t, err)
	}

	require.Equal(t, 4, d.ItemCount(0))
	assert.False(t, d.GetValue(0, 0).Valid)
	assert.False(t, d.GetValue(0, 1).Valid)
	assert.True(t, math.IsNaN(d.GetValueAsDouble(0, 1)))
	assert.Equal(t, Some(12), d.GetValue(0, 2))
	assert.Equal(t, Some(14), d.GetValue(0, 3))
}

func TestBollingerMiddleEqualsSMA(t *testing.T) {
	s := newSeries(t)
	bb := mustNew(t, s, "BB:5:2")
	sma := mustNew(t, s, "SMA:5")

	for i := 0; i < 30; i++ {
		_, _, err := s.Append(wave(i, 0))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"upper", "middle", "lower"}, []string{bb.SeriesKey(0), bb.SeriesKey(1), bb.SeriesKey(2)})
	for i := 0; i < 30; i++ {
		mid, avg := bb.GetValue(BollingerMiddle, i), sma.GetValue(0, i)
		require.Equal(t, avg.Valid, mid.Valid, "position %d", i)
		if avg.Valid {
			assert.InDelta(t, avg.Value, mid.Value, 1e-9)
			assert.Greater(t, bb.GetValueAsDouble(BollingerUpper, i), mid.Value)
			assert.Less(t, bb.GetValueAsDouble(BollingerLower, i), mid.Value)
		}
	}
}

func TestStochasticFlatBarsUnavailable(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "STOCH:3:1:1")

	for i := 0; i < 5; i++ {
		_, _, err := s.Append(model.Bar{TS: at(i), Open: 50, High: 50, Low: 50, Close: 50, Volume: 1})
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		assert.False(t, d.GetValue(StochasticK, i).Valid)
		assert.False(t, d.GetValue(StochasticD, i).Valid)
	}
}

func TestStochasticValues(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "STOCH:3:1:2")

	bars := []model.Bar{
		{TS: at(0), High: 10, Low: 5, Close: 8},
		{TS: at(1), High: 12, Low: 6, Close: 11},
		{TS: at(2), High: 15, Low: 10, Close: 13}, // HH=15 LL=5 → 80
		{TS: at(3), High: 14, Low: 8, Close: 8},   // HH=15 LL=6 → 22.22
	}
	_, err := s.AppendBatch(bars)
	require.NoError(t, err)

	assert.InDelta(t, 80.0, d.GetValueAsDouble(StochasticK, 2), 1e-9)
	assert.InDelta(t, 200.0/9, d.GetValueAsDouble(StochasticK, 3), 1e-9)
	assert.False(t, d.GetValue(StochasticD, 2).Valid) // needs two %K values
	assert.InDelta(t, (80.0+200.0/9)/2, d.GetValueAsDouble(StochasticD, 3), 1e-9)
}

func TestMACDLineAndHistogram(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "MACD:3:5:2")
	fast := mustNew(t, s, "EMA:3")
	slow := mustNew(t, s, "EMA:5")

	for i := 0; i < 20; i++ {
		_, _, err := s.Append(wave(i, 0))
		require.NoError(t, err)
	}

	for i := 0; i < 4; i++ {
		assert.False(t, d.GetValue(MACDLine, i).Valid)
		assert.False(t, d.GetValue(MACDSignal, i).Valid)
	}
	assert.True(t, d.GetValue(MACDLine, 4).Valid)
	assert.False(t, d.GetValue(MACDSignal, 4).Valid)
	assert.True(t, d.GetValue(MACDSignal, 5).Valid)

	for i := 4; i < 20; i++ {
		line := d.GetValueAsDouble(MACDLine, i)
		assert.InDelta(t, fast.GetValueAsDouble(0, i)-slow.GetValueAsDouble(0, i), line, 1e-9)
		if i >= 5 {
			assert.InDelta(t, line-d.GetValueAsDouble(MACDSignal, i), d.GetValueAsDouble(MACDHistogram, i), 1e-9)
		}
	}
}

func TestVolumeDataset(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "VOL:2")

	for i, v := range []int64{100, 300, 500} {
		_, _, err := s.Append(model.Bar{TS: at(i), Open: 1, High: 1, Low: 1, Close: 1, Volume: v})
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{100, 300, 500}, values(d, VolumeRaw))
	assert.False(t, d.GetValue(VolumeMA, 0).Valid)
	assert.Equal(t, Some(200), d.GetValue(VolumeMA, 1))
	assert.Equal(t, Some(400), d.GetValue(VolumeMA, 2))
}

func TestIncrementalEqualsBatch(t *testing.T) {
	specs := []string{
		"SMA:5", "EMA:4", "EMA:6:0.5", "SMMA:5", "RSI:5",
		"BB:6:2", "STOCH:5:3:3", "MACD:4:9:3", "VOL:4",
	}

	// Incremental: in-order appends, an out-of-order block, then replacements.
	live := newSeries(t)
	var incr []Indicator
	for _, raw := range specs {
		incr = append(incr, mustNew(t, live, raw))
	}
	ohlc := NewOHLC(live)

	for i := 0; i < 30; i++ {
		_, _, err := live.Append(wave(i, 0))
		require.NoError(t, err)
	}
	for i := 44; i >= 30; i-- {
		_, _, err := live.Append(wave(i, 0))
		require.NoError(t, err)
	}
	final := make(map[int]model.Bar)
	for i := 0; i < 45; i++ {
		final[i] = wave(i, 0)
	}
	for _, i := range []int{3, 20, 44, 31} {
		final[i] = wave(i, 7.5)
		_, replaced, err := live.Append(final[i])
		require.NoError(t, err)
		require.True(t, replaced)
	}
	_, err := live.AppendBatch([]model.Bar{wave(45, 0), wave(46, 0)})
	require.NoError(t, err)
	final[45], final[46] = wave(45, 0), wave(46, 0)

	// Batch: every final bar at once, datasets attached afterwards.
	batch := newSeries(t)
	all := make([]model.Bar, 0, len(final))
	for i := 0; i < len(final); i++ {
		all = append(all, final[i])
	}
	_, err = batch.AppendBatch(all)
	require.NoError(t, err)
	require.True(t, live.Equal(batch))

	for i, raw := range specs {
		assertSameValues(t, mustNew(t, batch, raw), incr[i])
	}
	assertSameValues(t, NewOHLC(batch), ohlc)
}

func TestOutOfRangeIsUnavailable(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "SMA:2")
	_, _, err := s.Append(closeBar(0, 10))
	require.NoError(t, err)

	for _, c := range []struct{ s, i int }{{0, -1}, {0, 1}, {1, 0}, {-1, 0}} {
		assert.False(t, d.GetValue(c.s, c.i).Valid, "%v", c)
		assert.True(t, math.IsNaN(d.GetValueAsDouble(c.s, c.i)), "%v", c)
	}
	assert.False(t, d.X(0, 5).Valid)
	assert.Equal(t, float64(at(0).UnixMilli()), d.X(0, 0).Value)
	assert.Equal(t, "", d.SeriesKey(3))
	assert.Equal(t, 0, d.ItemCount(3))
}

func TestPointsAtAndRows(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "SMA:2")
	for i, c := range []float64{10, 20, 30} {
		_, _, err := s.Append(closeBar(i, c))
		require.NoError(t, err)
	}

	pts := d.PointsAt(76)
	require.Len(t, pts, 1)
	assert.Equal(t, model.Point{Dataset: "SMA_2", Series: "value", Value: 15, Ready: true}, pts[0])

	pts = d.PointsAt(75)
	assert.False(t, pts[0].Ready)
	assert.Zero(t, pts[0].Value)

	assert.False(t, d.PointsAt(999)[0].Ready)

	rows := d.Rows(76, -1)
	require.Len(t, rows, 2)
	assert.Equal(t, 76, rows[0].Index)
	assert.Equal(t, []Number{Some(25)}, rows[1].Values)

	rows = d.Rows(75, 75)
	require.Len(t, rows, 1)
	b, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":75,"x":`+jsonInt(at(0).UnixMilli())+`,"values":[null]}`, string(b))

	assert.Empty(t, d.Rows(200, 100))
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestCloseDetaches(t *testing.T) {
	s := newSeries(t)
	d := mustNew(t, s, "SMA:1")
	assert.Equal(t, 1, s.Listeners())

	_, _, err := s.Append(closeBar(0, 10))
	require.NoError(t, err)
	d.Close()
	d.Close()
	assert.True(t, d.Closed())
	assert.Equal(t, 0, s.Listeners())

	_, _, err = s.Append(closeBar(1, 11))
	require.NoError(t, err)
	assert.Equal(t, 1, d.ItemCount(0))
	assert.Equal(t, Some(10), d.GetValue(0, 0))
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	s := newSeries(t)

	_, err := New(s, indicator.Spec{Kind: indicator.KindSMA, Period: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, indicator.ErrInvalidParameter))
	var pe *indicator.InvalidParameterError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "period", pe.Param)

	_, err = New(s, indicator.Spec{Kind: indicator.KindMACD, Fast: 26, Slow: 12, Signal: 9})
	assert.ErrorIs(t, err, indicator.ErrInvalidParameter)

	_, err = Parse(s, "BB:20:-1")
	assert.ErrorIs(t, err, indicator.ErrInvalidParameter)

	_, err = New(s, indicator.Spec{})
	assert.ErrorIs(t, err, indicator.ErrInvalidParameter)
	assert.Equal(t, 0, s.Listeners())
}

func TestNumberJSON(t *testing.T) {
	b, err := json.Marshal([]Number{Some(1.5), None})
	require.NoError(t, err)
	assert.Equal(t, `[1.5,null]`, string(b))

	var back []Number
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []Number{Some(1.5), None}, back)
	assert.Equal(t, "n/a", None.String())
	assert.Equal(t, None, Some(math.NaN()))
}
