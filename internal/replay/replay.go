// Package replay reads stored bars and emits them at a configurable speed,
// for backtests and for rebuilding charts from history.
package replay

import (
	"context"
	"time"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"
)

// maxGap caps the simulated wait between two bars.
const maxGap = 5 * time.Second

// Source lists stored bars at or after from, ordered by period start.
type Source interface {
	ReadAllBars(from time.Time) ([]model.Bar, error)
}

// Options filters and paces a replay.
type Options struct {
	From time.Time

	// Speed is the playback multiplier: 1 is real time, 10 is ten times
	// faster and 0 replays as fast as possible.
	Speed float64

	// Keys limits the replay to these series keys. Empty replays all.
	Keys []string
}

// Replayer emits stored bars in feed order.
type Replayer struct {
	src   Source
	log   *logger.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer reading from src.
func New(src Source, log *logger.Logger) *Replayer {
	if log == nil {
		log = logger.Nop()
	}
	return &Replayer{src: src, log: log.Component("replay"), sleep: sleepCtx}
}

// Run sends every matching bar to out and returns the number sent. It does
// not close out.
func (r *Replayer) Run(ctx context.Context, opts Options, out chan<- model.Bar) (int, error) {
	bars, err := r.src.ReadAllBars(opts.From)
	if err != nil {
		return 0, err
	}
	bars = filter(bars, opts.Keys)
	if len(bars) == 0 {
		r.log.Info("no bars to replay")
		return 0, nil
	}
	r.log.Info("replay loaded", logger.IntField("bars", len(bars)), logger.Field("speed", opts.Speed))

	var prev time.Time
	emitted := 0
	for _, b := range bars {
		if opts.Speed > 0 && !prev.IsZero() {
			if gap := b.TS.Sub(prev); gap > 0 {
				if err := r.sleep(ctx, min(time.Duration(float64(gap)/opts.Speed), maxGap)); err != nil {
					return emitted, err
				}
			}
		}
		prev = b.TS

		select {
		case <-ctx.Done():
			r.log.Info("replay cancelled", logger.IntField("emitted", emitted))
			return emitted, ctx.Err()
		case out <- b:
			emitted++
		}
	}
	r.log.Info("replay completed", logger.IntField("emitted", emitted))
	return emitted, nil
}

func filter(bars []model.Bar, keys []string) []model.Bar {
	if len(keys) == 0 {
		return bars
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := bars[:0:0]
	for i := range bars {
		if want[bars[i].Key()] {
			out = append(out, bars[i])
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
