package series

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/timeline"
)

const testKey = "NSE:3045"

func testTimeline(t *testing.T) *timeline.Timeline {
	t.Helper()
	tl, err := timeline.New(timeline.NSE(), 5*time.Minute, time.Date(2026, 1, 1, 0, 0, 0, 0, timeline.IST))
	require.NoError(t, err)
	return tl
}

// at returns the IST time of the n-th five minute period of 2026-01-02.
func at(n int) time.Time {
	return time.Date(2026, 1, 2, 9, 15, 0, 0, timeline.IST).Add(time.Duration(n) * 5 * time.Minute)
}

func bar(n int, close float64) model.Bar {
	return model.Bar{TS: at(n), Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 100}
}

type recorder struct {
	froms []int
	sizes []int
}

func (r *recorder) Recompute(bars []model.Bar, from int) {
	r.froms = append(r.froms, from)
	r.sizes = append(r.sizes, len(bars))
}

func TestAppend_AssignsIndexAndOrders(t *testing.T) {
	s := New(testKey, testTimeline(t))

	idx, replaced, err := s.Append(bar(2, 102))
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, 77, idx) // day two starts at 75

	_, _, err = s.Append(bar(0, 100))
	require.NoError(t, err)
	_, _, err = s.Append(bar(1, 101))
	require.NoError(t, err)

	require.Equal(t, 3, s.Size())
	var closes []float64
	for b := range s.Iterate() {
		closes = append(closes, b.Close)
	}
	assert.Equal(t, []float64{100, 101, 102}, closes)

	first, ok := s.At(0)
	require.True(t, ok)
	assert.Equal(t, "NSE", first.Exchange)
	assert.Equal(t, "3045", first.Token)
	assert.True(t, first.TS.Equal(at(0)))
}

func TestAppend_TruncatesToPeriodStart(t *testing.T) {
	s := New(testKey, testTimeline(t))
	b := bar(0, 100)
	b.TS = b.TS.Add(3*time.Minute + 10*time.Second)

	idx, _, err := s.Append(b)
	require.NoError(t, err)
	got, err := s.Get(idx)
	require.NoError(t, err)
	assert.True(t, got.TS.Equal(at(0)))
}

func TestAppend_ReplaceKeepsSize(t *testing.T) {
	s := New(testKey, testTimeline(t))
	for i := 0; i < 3; i++ {
		_, _, err := s.Append(bar(i, float64(100+i)))
		require.NoError(t, err)
	}

	idx, replaced, err := s.Append(bar(1, 999))
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, 3, s.Size())

	got, err := s.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, 999.0, got.Close)
}

func TestAppend_OutOfSession(t *testing.T) {
	s := New(testKey, testTimeline(t))
	b := bar(0, 100)
	b.TS = time.Date(2026, 1, 3, 10, 0, 0, 0, timeline.IST) // Saturday

	_, _, err := s.Append(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, timeline.ErrOutOfSession))
	assert.Equal(t, 0, s.Size())
}

func TestGet_IndexNotFound(t *testing.T) {
	s := New(testKey, testTimeline(t))
	_, _, err := s.Append(bar(0, 100))
	require.NoError(t, err)

	_, err = s.Get(12345)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexNotFound)
	var inf *IndexNotFoundError
	require.True(t, errors.As(err, &inf))
	assert.Equal(t, 12345, inf.Index)
	assert.Equal(t, testKey, inf.Key)
}

func TestIterate_RestartableAndLive(t *testing.T) {
	s := New(testKey, testTimeline(t))
	_, _, err := s.Append(bar(0, 100))
	require.NoError(t, err)

	seq := s.Iterate()
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 1, count())

	_, _, err = s.Append(bar(1, 101))
	require.NoError(t, err)
	assert.Equal(t, 2, count(), "second pass sees the latest state")

	// early break
	for range seq {
		break
	}
}

func TestClone_EqualAndIsolated(t *testing.T) {
	s := New(testKey, testTimeline(t))
	for i := 0; i < 5; i++ {
		_, _, err := s.Append(bar(i, float64(100+i)))
		require.NoError(t, err)
	}
	rec := &recorder{}
	s.Attach(rec)

	c := s.Clone()
	require.True(t, c.Equal(s))
	assert.Equal(t, 0, c.Listeners())

	_, _, err := c.Append(bar(1, 555))
	require.NoError(t, err)
	_, _, err = c.Append(bar(10, 110))
	require.NoError(t, err)

	assert.False(t, c.Equal(s))
	assert.Equal(t, 5, s.Size())
	orig, ok := s.At(1)
	require.True(t, ok)
	assert.Equal(t, 101.0, orig.Close)
	assert.Len(t, rec.froms, 1, "clone mutations must not reach source listeners")
}

func TestListener_FromPositions(t *testing.T) {
	s := New(testKey, testTimeline(t))
	rec := &recorder{}
	s.Attach(rec)

	mustAppend := func(b model.Bar) {
		_, _, err := s.Append(b)
		require.NoError(t, err)
	}
	mustAppend(bar(0, 100)) // tail
	mustAppend(bar(2, 102)) // tail
	mustAppend(bar(1, 101)) // middle insert
	mustAppend(bar(0, 99))  // replacement

	assert.Equal(t, []int{0, 0, 1, 1, 0}, rec.froms)
	assert.Equal(t, []int{0, 1, 2, 3, 3}, rec.sizes)

	require.True(t, s.Detach(rec))
	assert.False(t, s.Detach(rec))
	mustAppend(bar(3, 103))
	assert.Len(t, rec.froms, 5)
}

func TestSubscribe_EventsAfterUnlock(t *testing.T) {
	s := New(testKey, testTimeline(t))
	var kinds []EventKind
	id := s.Subscribe(func(ev Event) {
		// reading under the callback proves the lock is released
		_ = s.Size()
		kinds = append(kinds, ev.Kind)
	})

	_, _, _ = s.Append(bar(1, 101))
	_, _, _ = s.Append(bar(0, 100))
	_, _, _ = s.Append(bar(0, 100.5))
	_, _, _ = s.Append(bar(2, 102))

	assert.Equal(t, []EventKind{Appended, Inserted, Replaced, Appended}, kinds)
	assert.True(t, s.Unsubscribe(id))
}

func TestRange(t *testing.T) {
	s := New(testKey, testTimeline(t))
	for i := 0; i < 10; i++ {
		_, _, err := s.Append(bar(i, float64(i)))
		require.NoError(t, err)
	}
	got := s.Range(77, 79)
	require.Len(t, got, 3)
	assert.Equal(t, 77, got[0].Index)
	assert.Equal(t, 79, got[2].Index)

	assert.Len(t, s.Range(80, -1), 5)
	assert.Empty(t, s.Range(200, 300))
}

func TestAppendBatch(t *testing.T) {
	s := New(testKey, testTimeline(t))
	rec := &recorder{}
	s.Attach(rec)

	sat := bar(0, 1)
	sat.TS = time.Date(2026, 1, 3, 10, 0, 0, 0, timeline.IST)
	n, err := s.AppendBatch([]model.Bar{bar(3, 103), bar(1, 101), sat, bar(2, 102)})
	assert.Equal(t, 3, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, timeline.ErrOutOfSession)
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, []int{0, 0}, rec.froms, "one recompute per batch")
}

func TestConcurrentReaders(t *testing.T) {
	s := New(testKey, testTimeline(t))
	var wg sync.WaitGroup
	done := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = s.Size()
					_, _ = s.Last()
					for range s.Iterate() {
					}
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		_, _, err := s.Append(bar(i%75, float64(i)))
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
	assert.Equal(t, 75, s.Size())
}
