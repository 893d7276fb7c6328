package series

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-chartsv1/internal/model"
)

func TestAggregator_Merge(t *testing.T) {
	s := New(testKey, testTimeline(t))
	agg := &Aggregator{Mode: ModeMerge}

	first := model.Bar{TS: at(0), Open: 100, High: 105, Low: 98, Close: 103, Volume: 500}
	res, err := agg.Add(s, first)
	require.NoError(t, err)
	assert.False(t, res.Replaced)

	second := model.Bar{TS: at(0).Add(time.Minute), Open: 103, High: 110, Low: 101, Close: 107, Volume: 300}
	res, err = agg.Add(s, second)
	require.NoError(t, err)
	assert.True(t, res.Replaced)

	assert.Equal(t, 100.0, res.Bar.Open, "open stays from the first update")
	assert.Equal(t, 110.0, res.Bar.High)
	assert.Equal(t, 98.0, res.Bar.Low)
	assert.Equal(t, 107.0, res.Bar.Close)
	assert.Equal(t, int64(800), res.Bar.Volume)
	assert.Equal(t, 1, s.Size())
}

func TestAggregator_Replace(t *testing.T) {
	s := New(testKey, testTimeline(t))
	agg := &Aggregator{}

	_, err := agg.Add(s, bar(0, 100))
	require.NoError(t, err)
	res, err := agg.Add(s, bar(0, 90))
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.Equal(t, 90.0, res.Bar.Close)
	assert.Equal(t, int64(100), res.Bar.Volume)
}

func TestAggregator_StaleTolerance(t *testing.T) {
	s := New(testKey, testTimeline(t))
	var staleCalls int
	agg := &Aggregator{
		StaleTolerance: 2,
		OnStale:        func(model.Bar, int) { staleCalls++ },
	}

	_, err := agg.Add(s, bar(10, 110))
	require.NoError(t, err)

	_, err = agg.Add(s, bar(8, 108)) // exactly at tolerance
	require.NoError(t, err)

	_, err = agg.Add(s, bar(7, 107))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleBar)
	assert.Equal(t, 1, staleCalls)
	assert.Equal(t, 2, s.Size())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("merge")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, m)
	_, err = ParseMode("append")
	assert.Error(t, err)
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(testTimeline(t))
	a, created := r.GetOrCreate("NSE:1")
	assert.True(t, created)
	b, created := r.GetOrCreate("NSE:1")
	assert.False(t, created)
	assert.Same(t, a, b)

	r.GetOrCreate("BSE:9")
	assert.Equal(t, []string{"BSE:9", "NSE:1"}, r.Keys())

	_, ok := r.Remove("BSE:9")
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	tl := testTimeline(t)
	src := NewRegistry(tl)
	s, _ := src.GetOrCreate(testKey)
	for i := 0; i < 6; i++ {
		_, _, err := s.Append(bar(i, float64(100+i)))
		require.NoError(t, err)
	}

	raw, err := json.Marshal(src.Snapshot(4))
	require.NoError(t, err)

	var snap RegistrySnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, SnapshotVersion, snap.Version)

	dst := NewRegistry(tl)
	var attached []string
	restored, dropped, err := dst.Restore(snap, func(s *Series) {
		attached = append(attached, s.Key())
	})
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, []string{testKey}, attached)

	got, ok := dst.Get(testKey)
	require.True(t, ok)
	require.Equal(t, 4, got.Size())
	first, _ := got.At(0)
	assert.Equal(t, 102.0, first.Close)
	last, _ := got.Last()
	assert.True(t, last.TS.Equal(at(5)))

	_, _, err = dst.Restore(RegistrySnapshot{Version: SnapshotVersion + 1}, nil)
	assert.Error(t, err)
}
