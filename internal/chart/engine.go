// Package chart owns the in-memory charting state: one series per
// instrument, the configured datasets bound to each series, ad-hoc datasets
// created on request, and the stream of updates emitted after every accepted
// bar.
package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"trading-chartsv1/internal/dataset"
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/metrics"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/observer"
	"trading-chartsv1/internal/series"
	"trading-chartsv1/internal/timeline"
)

// Options configures an Engine.
type Options struct {
	Specs          []indicator.Spec
	Mode           series.Mode
	StaleTolerance int

	// DatasetTTL is how long an unused ad-hoc dataset stays attached.
	DatasetTTL      time.Duration
	CleanupInterval time.Duration

	// UpdateBuffer is the channel size of each update subscriber.
	UpdateBuffer int

	Log     *logger.Logger
	Metrics *metrics.Metrics
}

type chartState struct {
	series   *series.Series
	ohlc     *dataset.OHLC
	datasets []dataset.Indicator
}

// Engine routes bars into series and keeps their datasets current.
// Ingest for one key must be called from a single goroutine; different keys
// may be ingested concurrently.
type Engine struct {
	mu       sync.RWMutex
	registry *series.Registry
	states   map[string]*chartState
	specs    []indicator.Spec
	agg      series.Aggregator

	adhocMu sync.Mutex
	adhoc   *cache.Cache
	ttl     time.Duration

	updates *observer.FanOut[model.Update]
	log     *logger.Logger
	prom    *metrics.Metrics
}

// NewEngine creates an engine on tl.
func NewEngine(tl *timeline.Timeline, opts Options) *Engine {
	if opts.DatasetTTL <= 0 {
		opts.DatasetTTL = 10 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.UpdateBuffer <= 0 {
		opts.UpdateBuffer = 1024
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}

	e := &Engine{
		registry: series.NewRegistry(tl),
		states:   make(map[string]*chartState),
		specs:    opts.Specs,
		adhoc:    cache.New(opts.DatasetTTL, opts.CleanupInterval),
		ttl:      opts.DatasetTTL,
		updates:  observer.NewFanOut[model.Update](opts.UpdateBuffer),
		log:      opts.Log.Component("chart"),
		prom:     opts.Metrics,
	}
	e.agg = series.Aggregator{
		Mode:           opts.Mode,
		StaleTolerance: opts.StaleTolerance,
		OnStale: func(bar model.Bar, newest int) {
			e.log.Debug("stale bar dropped",
				logger.StringField("key", bar.Key()),
				logger.IntField("newest", newest))
		},
	}
	e.adhoc.OnEvicted(func(key string, v interface{}) {
		if d, ok := v.(dataset.Indicator); ok {
			d.Close()
			e.log.Debug("ad-hoc dataset evicted", logger.StringField("dataset", key))
			if e.prom != nil {
				e.prom.AdhocEvictions.Inc()
				e.prom.DatasetsActive.WithLabelValues("adhoc").Dec()
			}
		}
	})
	e.updates.OnDrop = func(id uuid.UUID, u model.Update) {
		if e.prom != nil {
			e.prom.FanoutDropsTotal.WithLabelValues(id.String()).Inc()
		}
	}
	return e
}

func (e *Engine) Timeline() *timeline.Timeline { return e.registry.Timeline() }
func (e *Engine) Specs() []indicator.Spec      { return e.specs }
func (e *Engine) Keys() []string               { return e.registry.Keys() }
func (e *Engine) Len() int                     { return e.registry.Len() }

// Series returns the series for key.
func (e *Engine) Series(key string) (*series.Series, bool) {
	return e.registry.Get(key)
}

// ensure returns the state for key, creating the series and attaching the
// configured datasets on first use.
func (e *Engine) ensure(key string) (*chartState, error) {
	e.mu.RLock()
	st, ok := e.states[key]
	e.mu.RUnlock()
	if ok {
		return st, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[key]; ok {
		return st, nil
	}
	s, _ := e.registry.GetOrCreate(key)
	st = &chartState{series: s, ohlc: dataset.NewOHLC(s)}
	for _, spec := range e.specs {
		d, err := dataset.New(s, spec)
		if err != nil {
			for _, prev := range st.datasets {
				prev.Close()
			}
			st.ohlc.Close()
			e.registry.Remove(key)
			return nil, err
		}
		st.datasets = append(st.datasets, d)
	}
	e.states[key] = st

	if e.prom != nil {
		e.prom.SeriesCount.Set(float64(len(e.states)))
		e.prom.DatasetsActive.WithLabelValues("configured").Add(float64(len(st.datasets)))
	}
	e.log.Info("series created", logger.StringField("key", key), logger.IntField("datasets", len(st.datasets)))
	return st, nil
}

func (e *Engine) state(key string) (*chartState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.states[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", series.ErrUnknownSeries, key)
	}
	return st, nil
}

// Ingest stores bar, recomputes the datasets of its series and publishes the
// resulting update to subscribers.
func (e *Engine) Ingest(ctx context.Context, bar model.Bar) (model.Update, error) {
	start := time.Now()
	if err := bar.Validate(); err != nil {
		e.reject(ctx, bar, "invalid", err)
		return model.Update{}, err
	}

	if _, err := e.state(bar.Key()); err != nil {
		// a rejected first bar must not leave an empty series behind
		if _, err := e.Timeline().ToTimelineValue(bar.TS); err != nil {
			e.reject(ctx, bar, "out_of_session", err)
			return model.Update{}, fmt.Errorf("series %s: %w", bar.Key(), err)
		}
	}
	st, err := e.ensure(bar.Key())
	if err != nil {
		return model.Update{}, err
	}
	res, err := e.agg.Add(st.series, bar)
	if err != nil {
		reason := "invalid"
		switch {
		case errors.Is(err, series.ErrStaleBar):
			reason = "stale"
		case errors.Is(err, timeline.ErrOutOfSession):
			reason = "out_of_session"
		}
		e.reject(ctx, bar, reason, err)
		return model.Update{}, err
	}

	u := model.Update{
		Key:      st.series.Key(),
		Index:    res.Bar.Index,
		TS:       res.Bar.TS,
		Bar:      res.Bar,
		Replaced: res.Replaced,
	}
	for _, d := range st.datasets {
		u.Points = append(u.Points, d.PointsAt(res.Bar.Index)...)
	}
	e.updates.Publish(u)

	if e.prom != nil {
		result := "appended"
		if res.Replaced {
			result = "replaced"
			if e.agg.Mode == series.ModeMerge {
				result = "merged"
			}
		}
		e.prom.BarsTotal.WithLabelValues(result).Inc()
		e.prom.IngestDur.Observe(time.Since(start).Seconds())
	}
	return u, nil
}

func (e *Engine) reject(ctx context.Context, bar model.Bar, reason string, err error) {
	if e.prom != nil {
		e.prom.BarsRejected.WithLabelValues(reason).Inc()
	}
	e.log.WarnContext(ctx, "bar rejected",
		logger.StringField("key", bar.Key()),
		logger.StringField("reason", reason),
		logger.ErrorField(err))
}

// Backfill loads stored bars into the series for key with a single
// recomputation and without emitting updates.
func (e *Engine) Backfill(key string, bars []model.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	st, err := e.ensure(key)
	if err != nil {
		return 0, err
	}
	return st.series.AppendBatch(bars)
}

// Latest returns an update describing the newest bar of key.
func (e *Engine) Latest(key string) (model.Update, error) {
	st, err := e.state(key)
	if err != nil {
		return model.Update{}, err
	}
	last, ok := st.series.Last()
	if !ok {
		return model.Update{}, &series.IndexNotFoundError{Key: key, Index: -1}
	}
	u := model.Update{Key: key, Index: last.Index, TS: last.TS, Bar: last}
	for _, d := range st.datasets {
		u.Points = append(u.Points, d.PointsAt(last.Index)...)
	}
	return u, nil
}

// Bars returns the bars of key with fromIdx <= index <= toIdx. A negative
// toIdx means no upper bound.
func (e *Engine) Bars(key string, fromIdx, toIdx int) ([]model.Bar, error) {
	st, err := e.state(key)
	if err != nil {
		return nil, err
	}
	return st.series.Range(fromIdx, toIdx), nil
}

// OHLC returns the OHLC dataset of key.
func (e *Engine) OHLC(key string) (*dataset.OHLC, error) {
	st, err := e.state(key)
	if err != nil {
		return nil, err
	}
	return st.ohlc, nil
}

// Datasets returns the configured datasets of key.
func (e *Engine) Datasets(key string) ([]dataset.Indicator, error) {
	st, err := e.state(key)
	if err != nil {
		return nil, err
	}
	return st.datasets, nil
}

// Dataset resolves raw against the configured datasets of key and falls
// back to an ad-hoc dataset that is detached after the idle TTL.
func (e *Engine) Dataset(key, raw string) (dataset.Indicator, error) {
	spec, err := indicator.ParseSpec(raw)
	if err != nil {
		return nil, err
	}
	st, err := e.state(key)
	if err != nil {
		return nil, err
	}
	for _, d := range st.datasets {
		if d.Spec() == spec {
			return d, nil
		}
	}

	cacheKey := key + "|" + spec.String()
	e.adhocMu.Lock()
	defer e.adhocMu.Unlock()
	// expired entries must go through OnEvicted before a replacement is Set
	e.adhoc.DeleteExpired()
	if v, ok := e.adhoc.Get(cacheKey); ok {
		d := v.(dataset.Indicator)
		// refresh the idle timer
		e.adhoc.Set(cacheKey, d, e.ttl)
		return d, nil
	}

	start := time.Now()
	d, err := dataset.New(st.series, spec)
	if err != nil {
		return nil, err
	}
	e.adhoc.Set(cacheKey, d, e.ttl)
	if e.prom != nil {
		e.prom.DatasetRecompute.Observe(time.Since(start).Seconds())
		e.prom.DatasetsActive.WithLabelValues("adhoc").Inc()
	}
	e.log.Info("ad-hoc dataset attached",
		logger.StringField("key", key),
		logger.StringField("dataset", d.Name()))
	return d, nil
}

// AdhocCount returns the number of cached ad-hoc datasets.
func (e *Engine) AdhocCount() int { return e.adhoc.ItemCount() }

// Subscribe returns a channel receiving every update. Slow subscribers lose
// updates rather than block ingestion.
func (e *Engine) Subscribe() (uuid.UUID, <-chan model.Update) { return e.updates.Subscribe() }

// Unsubscribe closes the channel of id.
func (e *Engine) Unsubscribe(id uuid.UUID) { e.updates.Unsubscribe(id) }

// Saturation reports the fill percentage of each subscriber channel.
func (e *Engine) Saturation() []float64 {
	stats := e.updates.ChannelStats()
	pct := make([]float64, len(stats))
	for i, st := range stats {
		if st.Cap > 0 {
			pct[i] = float64(st.Len) / float64(st.Cap) * 100
		}
	}
	return pct
}

// Snapshot captures every series, keeping at most maxBars bars each.
func (e *Engine) Snapshot(maxBars int) series.RegistrySnapshot {
	return e.registry.Snapshot(maxBars)
}

// Restore loads snap. Series are created with their configured datasets
// before their bars are loaded.
func (e *Engine) Restore(snap series.RegistrySnapshot) (restored, dropped int, err error) {
	for _, ss := range snap.Series {
		if _, err := e.ensure(ss.Key); err != nil {
			return 0, 0, err
		}
	}
	return e.registry.Restore(snap, nil)
}

// Close detaches every ad-hoc dataset and closes all subscriber channels.
func (e *Engine) Close() {
	e.adhocMu.Lock()
	for k := range e.adhoc.Items() {
		e.adhoc.Delete(k)
	}
	e.adhocMu.Unlock()
	e.updates.Close()
}
