// Package dataset binds indicator kernels to a series and exposes the derived
// values through a uniform (seriesIndex, itemIndex) accessor.
//
// A dataset is a series.Listener. Recomputation runs under the source series
// write lock and only touches positions from the first affected one onwards;
// accessors run under the source series read lock. Missing data never
// produces an error: out-of-range accessors and positions before the
// look-back has filled yield the unavailable value.
package dataset

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"sync/atomic"

	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
)

// Unavailable is the GetValueAsDouble sentinel. It is NaN, never zero.
var Unavailable = math.NaN()

// Number is an optional value. Valid == false means unavailable.
type Number struct {
	Value float64
	Valid bool
}

// None is the unavailable Number.
var None = Number{}

// Some wraps v, mapping NaN to None.
func Some(v float64) Number {
	if math.IsNaN(v) {
		return None
	}
	return Number{Value: v, Valid: true}
}

// Float returns the value, or NaN when unavailable.
func (n Number) Float() float64 {
	if !n.Valid {
		return Unavailable
	}
	return n.Value
}

func (n Number) String() string {
	if !n.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// MarshalJSON encodes unavailable values as null.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = None
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Dataset is the accessor contract shared by every derived dataset.
type Dataset interface {
	series.Listener

	// Name identifies the dataset, e.g. "SMA_20".
	Name() string
	// Source returns the series the dataset is bound to.
	Source() *series.Series
	// SeriesCount returns the number of output series (3 for Bollinger).
	SeriesCount() int
	// SeriesKey names output series s, e.g. "upper".
	SeriesKey(s int) string
	// ItemCount returns the number of items of series s.
	ItemCount(s int) int
	// X returns the period start of item i in Unix milliseconds.
	X(s, i int) Number
	// GetValue returns item i of series s.
	GetValue(s, i int) Number
	// GetValueAsDouble returns item i of series s, or NaN when unavailable.
	GetValueAsDouble(s, i int) float64
	// PointsAt returns every series value at timeline index.
	PointsAt(index int) []model.Point
	// Rows returns the values for timeline indices in [fromIdx, toIdx];
	// a negative toIdx means no upper bound.
	Rows(fromIdx, toIdx int) []Row
	// Close detaches the dataset from its source. Values stay readable but
	// are no longer updated.
	Close()
	// Closed reports whether Close has been called.
	Closed() bool
}

// Row is one position of a dataset, read atomically.
type Row struct {
	Index  int      `json:"index"`
	X      int64    `json:"x"`
	Values []Number `json:"values"`
}

// base implements the accessor side of Dataset over aligned output slices.
type base struct {
	src    *series.Series
	name   string
	keys   []string
	idx    []int     // timeline index per position
	xs     []int64   // period start ms per position
	out    [][]float64
	closed atomic.Bool
}

func (b *base) init(src *series.Series, name string, keys []string) {
	b.src, b.name, b.keys = src, name, keys
	b.out = make([][]float64, len(keys))
}

func (b *base) Name() string           { return b.name }
func (b *base) Source() *series.Series { return b.src }
func (b *base) SeriesCount() int       { return len(b.keys) }
func (b *base) Closed() bool           { return b.closed.Load() }

func (b *base) SeriesKey(s int) string {
	if s < 0 || s >= len(b.keys) {
		return ""
	}
	return b.keys[s]
}

func (b *base) ItemCount(s int) int {
	if s < 0 || s >= len(b.keys) {
		return 0
	}
	var n int
	b.read(func() { n = len(b.out[s]) })
	return n
}

func (b *base) X(s, i int) Number {
	var n Number
	b.read(func() {
		if s >= 0 && s < len(b.keys) && i >= 0 && i < len(b.xs) {
			n = Number{Value: float64(b.xs[i]), Valid: true}
		}
	})
	return n
}

func (b *base) GetValue(s, i int) Number {
	var n Number
	b.read(func() { n = Some(b.at(s, i)) })
	return n
}

func (b *base) GetValueAsDouble(s, i int) float64 {
	return b.GetValue(s, i).Float()
}

func (b *base) PointsAt(index int) []model.Point {
	pts := make([]model.Point, len(b.keys))
	b.read(func() {
		pos := sort.SearchInts(b.idx, index)
		found := pos < len(b.idx) && b.idx[pos] == index
		for s, key := range b.keys {
			pts[s] = model.Point{Dataset: b.name, Series: key}
			if !found {
				continue
			}
			if v := b.at(s, pos); !math.IsNaN(v) {
				pts[s].Value, pts[s].Ready = v, true
			}
		}
	})
	return pts
}

func (b *base) Rows(fromIdx, toIdx int) []Row {
	var rows []Row
	b.read(func() {
		lo := sort.SearchInts(b.idx, fromIdx)
		hi := len(b.idx)
		if toIdx >= 0 {
			hi = sort.SearchInts(b.idx, toIdx+1)
		}
		if lo >= hi {
			return
		}
		rows = make([]Row, 0, hi-lo)
		for pos := lo; pos < hi; pos++ {
			vals := make([]Number, len(b.keys))
			for s := range b.keys {
				vals[s] = Some(b.at(s, pos))
			}
			rows = append(rows, Row{Index: b.idx[pos], X: b.xs[pos], Values: vals})
		}
	})
	return rows
}

// close detaches l from the source series once.
func (b *base) close(l series.Listener) {
	if b.closed.CompareAndSwap(false, true) {
		b.src.Detach(l)
	}
}

// read runs fn under the source series read lock.
func (b *base) read(fn func()) {
	b.src.View(func([]model.Bar) { fn() })
}

// at reads without locking.
func (b *base) at(s, i int) float64 {
	if s < 0 || s >= len(b.out) || i < 0 || i >= len(b.out[s]) {
		return Unavailable
	}
	return b.out[s][i]
}

// truncate drops every position from `from` on, re-extends the index and
// time columns to match bars, and returns the clamped start position.
// Output slices are left truncated for the caller to extend.
func (b *base) truncate(bars []model.Bar, from int) int {
	from = max(0, min(from, len(b.idx), len(bars)))
	b.idx = b.idx[:from]
	b.xs = b.xs[:from]
	for s := range b.out {
		b.out[s] = b.out[s][:min(from, len(b.out[s]))]
	}
	for _, bar := range bars[from:] {
		b.idx = append(b.idx, bar.Index)
		b.xs = append(b.xs, bar.TS.UnixMilli())
	}
	return from
}
