package redis

import (
	"context"
	"fmt"
	"time"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 30 * time.Minute
	defaultSnapshotTTL  = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr        string // Redis address, e.g. "localhost:6379"
	Password    string
	DB          int
	SnapshotKey string
	StreamMax   int64         // approximate MAXLEN of chart streams
	LatestTTL   time.Duration // TTL of chart:latest:* keys
	Log         *logger.Logger
}

// Writer publishes chart updates and stores series snapshots. It implements
// model.UpdatePublisher and model.SnapshotStore.
type Writer struct {
	client      *goredis.Client
	snapshotKey string
	streamMax   int64
	latestTTL   time.Duration
	log         *logger.Logger
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client, err := connect(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	w := NewWithClient(client, cfg)
	w.log.Info("connected", logger.StringField("addr", cfg.Addr))
	return w, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig) *Writer {
	w := &Writer{
		client:      client,
		snapshotKey: cfg.SnapshotKey,
		streamMax:   cfg.StreamMax,
		latestTTL:   cfg.LatestTTL,
		log:         cfg.Log,
	}
	if w.snapshotKey == "" {
		w.snapshotKey = "chart:snapshot:series"
	}
	if w.streamMax <= 0 {
		w.streamMax = defaultStreamMaxLen
	}
	if w.latestTTL <= 0 {
		w.latestTTL = defaultLatestTTL
	}
	if w.log == nil {
		w.log = logger.Nop()
	}
	w.log = w.log.Component("redis-writer")
	return w
}

func connect(addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// PublishUpdate writes one update in a single pipeline:
// XADD chart:{key}, SET chart:latest:{key} and PUBLISH pub:chart:{key}.
func (w *Writer) PublishUpdate(ctx context.Context, u model.Update) error {
	return w.PublishBatch(ctx, []model.Update{u})
}

// PublishBatch writes many updates in one network round trip.
func (w *Writer) PublishBatch(ctx context.Context, updates []model.Update) error {
	if len(updates) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range updates {
		u := &updates[i]
		data := string(u.JSON())
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: u.StreamKey(),
			MaxLen: w.streamMax,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, u.LatestKey(), data, w.latestTTL)
		pipe.Publish(ctx, u.PubSubChannel(), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %d updates: %w", len(updates), err)
	}
	return nil
}

// SaveSnapshotJSON stores the series snapshot with a 24h TTL. SQLite keeps
// the durable copy.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	if err := w.client.Set(ctx, w.snapshotKey, data, defaultSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", w.snapshotKey, err)
	}
	return nil
}

// ReadLatestSnapshotJSON loads the snapshot, or nil if none is stored.
func (w *Writer) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	data, err := w.client.Get(ctx, w.snapshotKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", w.snapshotKey, err)
	}
	return data, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
