package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// BarStreamPrefix prefixes feed streams: "bars:{exchange}:{token}".
const BarStreamPrefix = "bars:"

// BarStream returns the feed stream of a series key.
func BarStream(key string) string { return BarStreamPrefix + key }

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "chartengine"
	ConsumerName  string // unique consumer name, e.g. hostname
	Log           *logger.Logger
}

// Reader consumes bars from Redis Streams via consumer groups. It
// implements model.BarConsumer.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
	log           *logger.Logger
}

// NewReader creates a Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client, err := connect(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = "chartengine"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("redis-reader")

	log.Info("connected",
		logger.StringField("addr", cfg.Addr),
		logger.StringField("group", group),
		logger.StringField("consumer", consumer))
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
		log:           log,
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// EnsureConsumerGroup creates the consumer group on every stream if it does
// not exist yet. Fresh groups start at "$" (new messages only).
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// DiscoverStreams lists existing feed streams matching bars:*.
func (r *Reader) DiscoverStreams(ctx context.Context) ([]string, error) {
	var (
		streams []string
		cursor  uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, BarStreamPrefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s*: %w", BarStreamPrefix, err)
		}
		streams = append(streams, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(streams)
	return streams, nil
}

// decodeBar parses the "data" field of a feed message. A bar without
// exchange and token takes them from the stream name.
func decodeBar(stream string, msg goredis.XMessage) (model.Bar, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return model.Bar{}, errors.New("missing data field")
	}
	var b model.Bar
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return model.Bar{}, err
	}
	if b.Token == "" {
		b.Exchange, b.Token = model.SplitKey(strings.TrimPrefix(stream, BarStreamPrefix))
	}
	return b, nil
}

// deliver decodes and forwards the messages of one stream, ACKing each after
// it has been handed over. Malformed messages are ACKed and skipped so they
// cannot block the group.
func (r *Reader) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.Bar) (int, error) {
	n := 0
	for _, msg := range msgs {
		bar, err := decodeBar(stream, msg)
		if err != nil {
			r.log.Warn("dropping malformed message",
				logger.StringField("stream", stream), logger.StringField("id", msg.ID), logger.ErrorField(err))
			r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
			continue
		}

		select {
		case out <- bar:
		case <-ctx.Done():
			return n, ctx.Err()
		}
		r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
		n++
	}
	return n, nil
}

// ConsumeBars reads bars with XREADGROUP and sends them to out.
// Blocks until ctx is cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, streams []string, out chan<- model.Bar) error {
	if len(streams) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	// [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			r.log.Error("xreadgroup failed", logger.ErrorField(err))
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
			}
			continue
		}

		for _, stream := range results {
			if _, err := r.deliver(ctx, stream.Stream, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// RecoverPending claims and processes this group's unACKed messages left by
// a previous run, giving at-least-once delivery.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.Bar) error {
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				Messages: ids,
			}).Result()
			if err != nil {
				r.log.Error("xclaim failed", logger.StringField("stream", stream), logger.ErrorField(err))
				break
			}
			if _, err := r.deliver(ctx, stream, claimed, out); err != nil {
				return err
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// ReclaimStale XCLAIMs entries idle longer than minIdle that belong to other
// consumers of the group, e.g. a crashed replica, and delivers them.
func (r *Reader) ReclaimStale(ctx context.Context, stream string, minIdle time.Duration, out chan<- model.Bar) (int, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  50,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0, err
	}

	var stale []string
	for _, p := range pending {
		if p.Consumer != r.consumerName {
			stale = append(stale, p.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    r.consumerGroup,
		Consumer: r.consumerName,
		MinIdle:  minIdle,
		Messages: stale,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xclaim %s: %w", stream, err)
	}
	return r.deliver(ctx, stream, claimed, out)
}

// RunReclaimer periodically reclaims stale entries on every stream until
// ctx is cancelled.
func (r *Reader) RunReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration, out chan<- model.Bar, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				n, err := r.ReclaimStale(ctx, stream, minIdle, out)
				if err != nil {
					r.log.Error("pel reclaim failed", logger.StringField("stream", stream), logger.ErrorField(err))
				}
				total += n
			}
			if total > 0 {
				r.log.Info("reclaimed stale entries", logger.IntField("count", total))
				if onReclaim != nil {
					onReclaim(total)
				}
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
