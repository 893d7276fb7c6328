package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the chart engine from concrete storage
// implementations (Redis, SQLite).

// BarWriter persists accepted bars.
type BarWriter interface {
	// Run reads bars from barCh and writes them.
	// Blocks until ctx is cancelled or barCh is closed.
	Run(ctx context.Context, barCh <-chan Bar)

	// Close releases underlying resources.
	Close() error
}

// BarReader reads stored bars for restore, backfill and replay.
type BarReader interface {
	// ReadBars reads bars of one series with an index greater than afterIdx,
	// ordered by index.
	ReadBars(key string, afterIdx int) ([]Bar, error)

	// ReadKeys lists every series key that has stored bars.
	ReadKeys() ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// UpdatePublisher fans accepted updates out to downstream consumers.
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, u Update) error
}

// SnapshotStore reads and writes series snapshots as raw JSON.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded snapshot.
	SaveSnapshotJSON(ctx context.Context, data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}

// BarConsumer consumes raw bars from a stream (e.g. Redis Streams).
type BarConsumer interface {
	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// RecoverPending processes any unACKed messages from a previous crash.
	RecoverPending(ctx context.Context, streams []string, out chan<- Bar) error

	// ConsumeBars reads bars via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeBars(ctx context.Context, streams []string, out chan<- Bar) error

	// Close releases underlying resources.
	Close() error
}
