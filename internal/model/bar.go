package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidBar is returned by Validate.
var ErrInvalidBar = errors.New("invalid bar")

// Bar is one period's OHLCV snapshot for a single instrument.
// Index is the timeline position and is assigned by the series on append.
type Bar struct {
	Exchange string    `json:"exchange"`
	Token    string    `json:"token"`
	Index    int       `json:"index"`
	TS       time.Time `json:"ts"` // period start once stored, raw feed time before
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
}

// Key returns a unique key for this bar's instrument: "exchange:token".
func (b *Bar) Key() string {
	return b.Exchange + ":" + b.Token
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// SplitKey splits "exchange:token" into its parts. A key without a
// separator is treated as a bare token.
func SplitKey(key string) (exchange, token string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// Equal reports whether both bars hold the same values. Timestamps are
// compared as instants.
func (b Bar) Equal(o Bar) bool {
	return b.Exchange == o.Exchange && b.Token == o.Token && b.Index == o.Index &&
		b.TS.Equal(o.TS) && b.Open == o.Open && b.High == o.High &&
		b.Low == o.Low && b.Close == o.Close && b.Volume == o.Volume
}

// Validate rejects bars without a token or timestamp, with non-finite prices,
// with high below low or with negative volume.
func (b Bar) Validate() error {
	if b.Token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidBar)
	}
	if b.TS.IsZero() {
		return fmt.Errorf("%w: %s: missing timestamp", ErrInvalidBar, b.Key())
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: non-finite price", ErrInvalidBar, b.Key())
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: %s: high %g below low %g", ErrInvalidBar, b.Key(), b.High, b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: %s: negative volume", ErrInvalidBar, b.Key())
	}
	return nil
}
