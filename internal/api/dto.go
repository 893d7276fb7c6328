package api

import (
	"time"

	"trading-chartsv1/internal/dataset"
	"trading-chartsv1/internal/model"
)

// RangeRequest selects a series and a timeline index range. To is -1
// when the query has no upper bound.
type RangeRequest struct {
	Key  string `param:"key" validate:"required"`
	From int    `query:"from" validate:"gte=0"`
	To   int    `query:"to" validate:"gte=-1"`
}

type DatasetRequest struct {
	Key  string `param:"key" validate:"required"`
	Spec string `param:"spec" validate:"required"`
	From int    `query:"from" validate:"gte=0"`
	To   int    `query:"to" validate:"gte=-1"`
}

// IngestRequest is one bar posted to a series. The key comes from the path.
type IngestRequest struct {
	Key    string    `param:"key" json:"-" validate:"required"`
	TS     time.Time `json:"ts" validate:"required"`
	Open   float64   `json:"open" validate:"gte=0"`
	High   float64   `json:"high" validate:"gte=0,gtefield=Low"`
	Low    float64   `json:"low" validate:"gte=0"`
	Close  float64   `json:"close" validate:"gte=0"`
	Volume int64     `json:"volume" validate:"gte=0"`
}

func (r IngestRequest) bar() model.Bar {
	ex, tok := model.SplitKey(r.Key)
	return model.Bar{
		Exchange: ex, Token: tok, TS: r.TS,
		Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
	}
}

// TimelineIndexRequest takes an RFC 3339 timestamp or Unix milliseconds.
type TimelineIndexRequest struct {
	TS string `query:"ts" validate:"required"`
}

// TimelineTimeRequest starts with Index -1 so a missing index fails
// validation.
type TimelineTimeRequest struct {
	Index int `query:"index" validate:"gte=0"`
}

type HealthResponse struct {
	Status     string   `json:"status"`
	Series     int      `json:"series"`
	Indicators []string `json:"indicators"`
	Timeline   string   `json:"timeline"`
}

type SeriesInfo struct {
	Key    string `json:"key"`
	Size   int    `json:"size"`
	First  int    `json:"first"`
	Last   int    `json:"last"`
	LastTS string `json:"last_ts,omitempty"`
}

type DatasetInfo struct {
	Name   string   `json:"name"`
	Spec   string   `json:"spec"`
	Series []string `json:"series"`
	Items  int      `json:"items"`
}

type DatasetResponse struct {
	Name   string        `json:"name"`
	Spec   string        `json:"spec"`
	Series []string      `json:"series"`
	Rows   []dataset.Row `json:"rows"`
}

type TimelineIndexResponse struct {
	Index       int    `json:"index"`
	PeriodStart string `json:"period_start"`
	Millis      int64  `json:"ms"`
}

type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}
