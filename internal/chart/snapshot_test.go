package chart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trading-chartsv1/internal/metrics"
	"trading-chartsv1/internal/timeline"
)

// MockStore is a mock implementation of model.SnapshotStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *MockStore) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

func seeded(t *testing.T, opts Options) *Engine {
	t.Helper()
	e := newEngine(t, opts, "EMA:2")
	for i, c := range []float64{10, 11, 12} {
		_, err := e.Ingest(context.Background(), bar(i, c))
		require.NoError(t, err)
	}
	return e
}

func TestCheckpoint_AllStores(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	e := seeded(t, Options{Metrics: m})
	ctx := context.Background()

	redis, sqlite := new(MockStore), new(MockStore)
	redis.On("SaveSnapshotJSON", ctx, mock.Anything).Return(errors.New("connection refused"))
	sqlite.On("SaveSnapshotJSON", ctx, mock.Anything).Return(nil)

	err := e.Checkpoint(ctx, 0, NamedStore{"redis", redis}, NamedStore{"sqlite", sqlite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis snapshot")
	redis.AssertExpectations(t)
	sqlite.AssertExpectations(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("redis", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("sqlite", "ok")))
}

func TestRestoreLatest_FallsThrough(t *testing.T) {
	src := seeded(t, Options{})
	data, err := src.SnapshotJSON(0)
	require.NoError(t, err)
	ctx := context.Background()

	broken, empty, good := new(MockStore), new(MockStore), new(MockStore)
	broken.On("ReadLatestSnapshotJSON", ctx).Return(nil, errors.New("timeout"))
	empty.On("ReadLatestSnapshotJSON", ctx).Return(nil, nil)
	good.On("ReadLatestSnapshotJSON", ctx).Return(data, nil)

	dst := newEngine(t, Options{}, "EMA:2")
	used, err := dst.RestoreLatest(ctx,
		NamedStore{"redis", broken}, NamedStore{"cache", empty}, NamedStore{"sqlite", good})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", used)

	want, err := src.Latest(key)
	require.NoError(t, err)
	got, err := dst.Latest(key)
	require.NoError(t, err)
	assert.Equal(t, want.Index, got.Index)
	assert.InDelta(t, want.Points[0].Value, got.Points[0].Value, 1e-9)
}

func TestRestoreLatest_Nothing(t *testing.T) {
	ctx := context.Background()
	corrupt := new(MockStore)
	corrupt.On("ReadLatestSnapshotJSON", ctx).Return([]byte("{not json"), nil)

	e := newEngine(t, Options{})
	used, err := e.RestoreLatest(ctx, NamedStore{"redis", corrupt})
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Zero(t, e.Len())
}

func TestSessionCloseSpec(t *testing.T) {
	spec, err := SessionCloseSpec(timeline.NSE())
	require.NoError(t, err)
	assert.Equal(t, "0 30 15 * * 1,2,3,4,5", spec)

	weekend, err := timeline.NewSession(time.UTC, 10*time.Hour, 14*time.Hour+90*time.Second,
		[]time.Weekday{time.Saturday, time.Sunday}, nil)
	require.NoError(t, err)
	spec, err = SessionCloseSpec(weekend)
	require.NoError(t, err)
	assert.Equal(t, "30 1 14 * * 0,6", spec)

	_, err = SessionCloseSpec(timeline.AlwaysOpen(time.UTC))
	assert.True(t, errors.Is(err, timeline.ErrInvalidSession))
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := NewScheduler(timeline.NSE(), nil)
	fired := make(chan struct{}, 1)
	require.NoError(t, s.Every("tick", "* * * * * *", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}))
	assert.Error(t, s.Every("broken", "not a spec", func() {}))

	s.Start()
	defer s.Stop()
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
