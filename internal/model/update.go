package model

import (
	"encoding/json"
	"time"
)

// Point is the latest value of one dataset series after an update.
// Value is 0 when Ready is false.
type Point struct {
	Dataset string  `json:"dataset"` // e.g. "BB_20_2"
	Series  string  `json:"series"`  // e.g. "upper"
	Value   float64 `json:"value"`
	Ready   bool    `json:"ready"`
}

// Update is emitted after a bar has been accepted by a series.
type Update struct {
	Key      string    `json:"key"`
	Index    int       `json:"index"`
	TS       time.Time `json:"ts"` // period start
	Bar      Bar       `json:"bar"`
	Replaced bool      `json:"replaced"`
	Points   []Point   `json:"points"`
}

// StreamKey returns the Redis stream key: "chart:{exchange}:{token}".
func (u *Update) StreamKey() string {
	return "chart:" + u.Key
}

// LatestKey returns the Redis key holding the most recent update.
func (u *Update) LatestKey() string {
	return "chart:latest:" + u.Key
}

// PubSubChannel returns the channel real-time subscribers listen on.
func (u *Update) PubSubChannel() string {
	return "pub:chart:" + u.Key
}

// JSON returns the JSON-encoded update.
func (u *Update) JSON() []byte {
	b, _ := json.Marshal(u)
	return b
}
