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

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/metrics"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/timeline"
)

// MockPublisher is a mock implementation of model.UpdatePublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishUpdate(ctx context.Context, u model.Update) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func testService(t *testing.T, pub model.UpdatePublisher) *Service {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return &Service{
		log:       logger.Nop(),
		engine:    newEngine(t, Options{Metrics: m}, "SMA:2"),
		publisher: pub,
		prom:      m,
		health:    metrics.NewHealthStatus(),
		barCh:     make(chan model.Bar, 8),
		persistCh: make(chan model.Bar, 8),
	}
}

func TestService_IngestPublishes(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishUpdate", mock.Anything, mock.MatchedBy(func(u model.Update) bool {
		return u.Key == key && u.Index == 75
	})).Return(nil).Once()
	pub.On("PublishUpdate", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

	svc := testService(t, pub)
	ctx := context.Background()

	u, err := svc.Ingest(ctx, bar(0, 10))
	require.NoError(t, err)
	assert.Equal(t, 75, u.Index)

	// publish failures do not fail the ingest
	_, err = svc.Ingest(ctx, bar(1, 11))
	require.NoError(t, err)
	pub.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.PublishErrors))

	saturday := bar(0, 1)
	saturday.TS = time.Date(2026, 1, 3, 10, 0, 0, 0, timeline.IST)
	_, err = svc.Ingest(ctx, saturday)
	assert.True(t, errors.Is(err, timeline.ErrOutOfSession))
	pub.AssertNumberOfCalls(t, "PublishUpdate", 2)

	assert.Equal(t, 1, svc.health.SeriesCount)
	assert.True(t, at(1).Equal(svc.health.LastBarTime))
}

func TestService_ProcessLoop(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishUpdate", mock.Anything, mock.Anything).Return(nil)
	svc := testService(t, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.processLoop(ctx)
		close(done)
	}()

	for i, c := range []float64{10, 12, 14} {
		svc.barCh <- bar(i, c)
	}
	require.Eventually(t, func() bool {
		bars, err := svc.engine.Bars(key, 0, -1)
		return err == nil && len(bars) == 3
	}, time.Second, 5*time.Millisecond)

	u, err := svc.engine.Latest(key)
	require.NoError(t, err)
	assert.InDelta(t, 13, point(t, u, "SMA_2", "value").Value, 1e-9)

	cancel()
	<-done
}
