package chart

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"trading-chartsv1/config"
	"trading-chartsv1/internal/api"
	"trading-chartsv1/internal/gateway"
	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/metrics"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
	redisstore "trading-chartsv1/internal/store/redis"
	sqlitestore "trading-chartsv1/internal/store/sqlite"
)

const (
	barBuffer     = 5000
	persistBuffer = 5000
	replaySize    = 500
)

// Service is the top-level orchestrator of the chart engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *logger.Logger

	engine      *Engine
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	publisher   model.UpdatePublisher
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer

	prom      *metrics.Metrics
	gatherer  prometheus.Gatherer
	health    *metrics.HealthStatus
	api       *api.Server
	hub       *gateway.Hub
	scheduler *Scheduler
	metricsSv *metrics.Server

	streams     []string
	barCh       chan model.Bar
	persistCh   chan model.Bar
	persistDone chan struct{}
}

// New creates a Service from cfg. It connects to Redis and SQLite; Redis is
// required, SQLite failures only disable persistence and backfill.
func New(cfg *config.Config, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("service")

	tl, err := cfg.Timeline()
	if err != nil {
		return nil, err
	}
	specs, err := cfg.IndicatorSpecs()
	if err != nil {
		return nil, err
	}
	mode, err := series.ParseMode(cfg.Feed.Mode)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := &Service{
		cfg:       cfg,
		log:       log,
		prom:      metrics.NewMetrics(reg),
		gatherer:  reg,
		health:    metrics.NewHealthStatus(),
		barCh:     make(chan model.Bar, barBuffer),
		persistCh: make(chan model.Bar, persistBuffer),

		persistDone: make(chan struct{}),
	}
	svc.engine = NewEngine(tl, Options{
		Specs:           specs,
		Mode:            mode,
		StaleTolerance:  cfg.Feed.StaleTolerance,
		DatasetTTL:      cfg.Cache.DatasetTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Log:             log,
		Metrics:         svc.prom,
	})

	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name()
	}
	svc.health.SetIndicators(names)

	// ---- Connect to Redis ----
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.Redis.Addr,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		ConsumerGroup: cfg.Feed.ConsumerGroup,
		ConsumerName:  cfg.Feed.ConsumerName,
		Log:           log,
	})
	if err != nil {
		return nil, err
	}
	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		SnapshotKey: cfg.Redis.SnapshotKey,
		Log:         log,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}
	svc.health.SetRedisConnected(true)

	// ---- Open SQLite ----
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("sqlite directory", logger.ErrorField(err))
		}
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLite.Path, Log: log})
	if err != nil {
		log.Warn("sqlite writer init failed, continuing without persistence", logger.ErrorField(err))
	} else {
		svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			log.Warn("sqlite reader init failed, continuing without backfill", logger.ErrorField(err))
		}
		svc.health.SetSQLiteOK(true)
	}

	svc.scheduler = NewScheduler(tl.Session(), log)
	svc.hub = gateway.NewHub(replaySize, log)
	svc.hub.OnClientCount = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	svc.api = api.New(svc.engine, svc, api.Config{
		Addr:      cfg.HTTP.Addr,
		RateLimit: rate.Limit(cfg.RateLimit.PerSecond),
		Burst:     cfg.RateLimit.Burst,
		Health:    svc.health,
		Metrics:   svc.prom,
		Log:       log,
	})
	svc.api.Mount("/ws", svc.hub)
	svc.metricsSv = metrics.NewServer(cfg.Metrics.Addr, svc.gatherer, svc.health, log)
	return svc, nil
}

// Engine returns the chart engine.
func (svc *Service) Engine() *Engine { return svc.engine }

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting chart engine", logger.StringField("timeline", svc.engine.Timeline().String()))
	svc.publisher = svc.newPublisher(ctx)

	// ---- Restore from snapshot, then catch up from SQLite ----
	used, err := svc.engine.RestoreLatest(ctx, svc.snapshotStores()...)
	if err != nil {
		return err
	}
	if used == "" {
		svc.log.Info("no snapshot found, starting empty")
	}
	svc.backfill()
	go svc.processLoop(ctx)

	// ---- Streams ----
	svc.streams = svc.buildStreams(ctx)
	svc.log.Info("consuming streams", logger.IntField("count", len(svc.streams)), logger.Field("streams", svc.streams))
	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			svc.log.Warn("consumer group setup", logger.ErrorField(err))
		}
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.barCh); err != nil {
			svc.log.Error("pending recovery", logger.ErrorField(err))
		}
	}

	// ---- Start subsystems ----
	svc.startReclaimer(ctx)
	svc.startConsumer(ctx)
	if svc.sqlWriter != nil {
		go func() {
			defer close(svc.persistDone)
			svc.sqlWriter.Run(ctx, svc.persistCh)
		}()
	} else {
		close(svc.persistDone)
	}
	svc.startScheduler()
	go func() {
		if err := svc.hub.Run(ctx, gateway.EngineSource{Engine: svc.engine}); err != nil {
			svc.log.Error("gateway stopped", logger.ErrorField(err))
		}
	}()
	go svc.monitorLoop(ctx)

	svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), svc.sqlDB(), 10*time.Second)
	svc.metricsSv.Start()
	svc.api.Start()

	svc.log.Info("all systems running",
		logger.StringField("http", svc.cfg.HTTP.Addr),
		logger.StringField("metrics", svc.cfg.Metrics.Addr),
		logger.StringField("snapshot_cron", svc.cfg.Snapshot.Cron))

	<-ctx.Done()
	svc.shutdown()
	return nil
}

// Ingest accepts one bar: it updates the engine, queues the bar for SQLite
// and publishes the update to Redis. It serves bars posted over HTTP as well
// as the feed.
func (svc *Service) Ingest(ctx context.Context, bar model.Bar) (model.Update, error) {
	u, err := svc.engine.Ingest(ctx, bar)
	if err != nil {
		return u, err
	}
	svc.health.SetLastBarTime(u.TS)
	svc.health.SetSeriesCount(svc.engine.Len())
	svc.prom.LastBarLag.Set(time.Since(u.TS).Seconds())

	if svc.sqlWriter != nil {
		select {
		case svc.persistCh <- u.Bar:
		default:
			svc.log.Warn("persist queue full, bar not stored", logger.StringField("key", u.Key), logger.IntField("index", u.Index))
		}
	}
	if svc.publisher != nil {
		start := time.Now()
		if err := svc.publisher.PublishUpdate(ctx, u); err != nil {
			svc.prom.PublishErrors.Inc()
			svc.log.WarnContext(ctx, "publish update", logger.StringField("key", u.Key), logger.ErrorField(err))
		}
		svc.prom.PublishDur.Observe(time.Since(start).Seconds())
	}
	return u, nil
}

// processLoop feeds bars from the consumer channel into the engine.
// Rejections are logged and counted by the engine.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-svc.barCh:
			if !ok {
				return
			}
			_, _ = svc.Ingest(ctx, bar)
		}
	}
}

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	svc.health.SetFeedRunning(true)
	go func() {
		defer svc.health.SetFeedRunning(false)
		if err := svc.redisReader.ConsumeBars(ctx, svc.streams, svc.barCh); err != nil && !errors.Is(err, context.Canceled) {
			svc.log.Error("consumer stopped", logger.ErrorField(err))
		}
	}()
}

// startReclaimer starts periodic reclamation of stale PEL entries.
func (svc *Service) startReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	feed := svc.cfg.Feed
	go svc.redisReader.RunReclaimer(ctx, svc.streams, feed.PELInterval, feed.PELMinIdle, svc.barCh,
		func(count int) { svc.prom.PELMessagesReclaimed.Add(float64(count)) })
	svc.log.Info("pel reclaimer started",
		logger.Field("interval", feed.PELInterval),
		logger.Field("min_idle", feed.PELMinIdle))
}

// buildStreams returns the configured streams, or discovers bars:* streams
// when none are configured.
func (svc *Service) buildStreams(ctx context.Context) []string {
	if len(svc.cfg.Feed.Streams) > 0 {
		streams := make([]string, len(svc.cfg.Feed.Streams))
		for i, key := range svc.cfg.Feed.Streams {
			streams[i] = redisstore.BarStream(key)
		}
		return streams
	}
	streams, err := svc.redisReader.DiscoverStreams(ctx)
	if err != nil {
		svc.log.Warn("stream discovery", logger.ErrorField(err))
	}
	return streams
}

// backfill loads stored bars newer than each series' last restored index.
func (svc *Service) backfill() {
	if svc.sqlReader == nil {
		return
	}
	keys, err := svc.sqlReader.ReadKeys()
	if err != nil {
		svc.log.Warn("backfill keys", logger.ErrorField(err))
		return
	}
	total := 0
	for _, key := range keys {
		after := -1
		if u, err := svc.engine.Latest(key); err == nil {
			after = u.Index
		}
		bars, err := svc.sqlReader.ReadBars(key, after)
		if err != nil {
			svc.log.Warn("backfill read", logger.StringField("key", key), logger.ErrorField(err))
			continue
		}
		n, err := svc.engine.Backfill(key, bars)
		if err != nil {
			svc.log.Warn("backfill skipped bars", logger.StringField("key", key), logger.ErrorField(err))
		}
		total += n
	}
	svc.health.SetSeriesCount(svc.engine.Len())
	if total > 0 {
		svc.log.Info("backfilled from sqlite", logger.IntField("bars", total), logger.IntField("series", len(keys)))
	}
}

// newPublisher wraps the Redis writer in a circuit breaker with a local
// buffer for outages.
func (svc *Service) newPublisher(ctx context.Context) model.UpdatePublisher {
	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
	}
	bp := redisstore.NewBufferedPublisher(ctx, svc.redisWriter, cb, 0, svc.log)
	bp.OnBuffer = svc.prom.RedisBufferedWrites.Inc
	bp.OnDrop = svc.prom.RedisBufferDrops.Inc
	return bp
}

func (svc *Service) snapshotStores() []NamedStore {
	stores := []NamedStore{{Name: "redis", Store: svc.redisWriter}}
	if svc.sqlWriter != nil {
		stores = append(stores, NamedStore{Name: "sqlite", Store: svc.sqlWriter})
	}
	return stores
}

func (svc *Service) checkpoint(ctx context.Context) {
	if err := svc.engine.Checkpoint(ctx, svc.cfg.Snapshot.MaxBars, svc.snapshotStores()...); err != nil {
		svc.log.ErrorContext(ctx, "checkpoint", logger.ErrorField(err))
	}
}

func (svc *Service) startScheduler() {
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc.checkpoint(ctx)
	}
	if err := svc.scheduler.Every("checkpoint", svc.cfg.Snapshot.Cron, job); err != nil {
		svc.log.Error("checkpoint schedule", logger.ErrorField(err))
	}
	if err := svc.scheduler.AtSessionClose("session-close checkpoint", svc.engine.Timeline().Session(), job); err != nil {
		svc.log.Info("no session-close checkpoint", logger.ErrorField(err))
	}
	svc.scheduler.Start()
}

// monitorLoop refreshes gauges that are sampled rather than event driven.
func (svc *Service) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	sess := svc.engine.Timeline().Session()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			svc.prom.ChannelSaturationPct.WithLabelValues("bars").Set(pct(len(svc.barCh), cap(svc.barCh)))
			svc.prom.ChannelSaturationPct.WithLabelValues("persist").Set(pct(len(svc.persistCh), cap(svc.persistCh)))
			var worst float64
			for _, p := range svc.engine.Saturation() {
				worst = max(worst, p)
			}
			svc.prom.ChannelSaturationPct.WithLabelValues("updates").Set(worst)
			if sess.IsOpen(now) {
				svc.prom.MarketState.Set(1)
			} else {
				svc.prom.MarketState.Set(0)
			}
		}
	}
}

func pct(n, c int) float64 {
	if c == 0 {
		return 0
	}
	return float64(n) / float64(c) * 100
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown() {
	svc.log.Info("shutdown signal received, saving final snapshot")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc.scheduler.Stop()
	if err := svc.api.Stop(ctx); err != nil {
		svc.log.Warn("api shutdown", logger.ErrorField(err))
	}
	if err := svc.metricsSv.Stop(ctx); err != nil {
		svc.log.Warn("metrics shutdown", logger.ErrorField(err))
	}
	svc.hub.Close()

	svc.checkpoint(ctx)
	svc.engine.Close()
	<-svc.persistDone

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()
	svc.log.Info("shutdown complete")
}
