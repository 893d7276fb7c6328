package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// NamedStore labels a snapshot store for logs and metrics.
type NamedStore struct {
	Name  string
	Store model.SnapshotStore
}

// SnapshotJSON encodes every series, keeping at most maxBars bars each.
func (e *Engine) SnapshotJSON(maxBars int) ([]byte, error) {
	data, err := json.Marshal(e.Snapshot(maxBars))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// RestoreJSON decodes a snapshot written by SnapshotJSON and restores it.
func (e *Engine) RestoreJSON(data []byte) (restored, dropped int, err error) {
	var snap series.RegistrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, 0, fmt.Errorf("decode snapshot: %w", err)
	}
	return e.Restore(snap)
}

// Checkpoint writes one snapshot to every store. A failing store does not
// stop the others; their errors are joined.
func (e *Engine) Checkpoint(ctx context.Context, maxBars int, stores ...NamedStore) error {
	data, err := e.SnapshotJSON(maxBars)
	if err != nil {
		return err
	}
	var errs []error
	for _, st := range stores {
		result := "ok"
		if err := st.Store.SaveSnapshotJSON(ctx, data); err != nil {
			result = "error"
			errs = append(errs, fmt.Errorf("%s snapshot: %w", st.Name, err))
		}
		if e.prom != nil {
			e.prom.SnapshotsTotal.WithLabelValues(st.Name, result).Inc()
		}
	}
	e.log.InfoContext(ctx, "checkpoint saved",
		logger.IntField("series", e.Len()),
		logger.IntField("bytes", len(data)))
	return errors.Join(errs...)
}

// RestoreLatest restores from the first store holding a snapshot. Stores
// that fail or hold nothing are skipped. It returns the name of the store
// used, or "" when no snapshot was found.
func (e *Engine) RestoreLatest(ctx context.Context, stores ...NamedStore) (string, error) {
	for _, st := range stores {
		data, err := st.Store.ReadLatestSnapshotJSON(ctx)
		if err != nil {
			e.log.WarnContext(ctx, "snapshot read failed",
				logger.StringField("store", st.Name), logger.ErrorField(err))
			continue
		}
		if data == nil {
			continue
		}
		restored, dropped, err := e.RestoreJSON(data)
		if err != nil {
			e.log.WarnContext(ctx, "snapshot restore failed",
				logger.StringField("store", st.Name), logger.ErrorField(err))
			continue
		}
		e.log.InfoContext(ctx, "restored from snapshot",
			logger.StringField("store", st.Name),
			logger.IntField("series", restored),
			logger.IntField("dropped", dropped))
		return st.Name, nil
	}
	return "", nil
}
