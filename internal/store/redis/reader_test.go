package redis

import (
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-chartsv1/internal/model"
)

func TestDecodeBar(t *testing.T) {
	full := model.Bar{Exchange: "NSE", Token: "3045", TS: time.Date(2026, 1, 2, 3, 45, 0, 0, time.UTC), Close: 101.5, Volume: 7}

	tests := []struct {
		name    string
		stream  string
		values  map[string]interface{}
		want    model.Bar
		wantErr bool
	}{
		{
			name:   "full bar",
			stream: BarStream("NSE:3045"),
			values: map[string]interface{}{"data": string(full.JSON())},
			want:   full,
		},
		{
			name:   "key from stream name",
			stream: BarStream("BSE:500325"),
			values: map[string]interface{}{"data": `{"ts":"2026-01-02T03:45:00Z","close":10}`},
			want:   model.Bar{Exchange: "BSE", Token: "500325", TS: full.TS, Close: 10},
		},
		{name: "missing data", stream: "bars:NSE:1", values: map[string]interface{}{}, wantErr: true},
		{name: "bad json", stream: "bars:NSE:1", values: map[string]interface{}{"data": "{"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBar(tt.stream, goredis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %+v", got)
		})
	}
}

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("ERR no such key")))
	assert.False(t, isBusyGroup(nil))
}

func TestUpdateKeys(t *testing.T) {
	u := model.Update{Key: "NSE:3045"}
	assert.Equal(t, "chart:NSE:3045", u.StreamKey())
	assert.Equal(t, "chart:latest:NSE:3045", u.LatestKey())
	assert.Equal(t, "pub:chart:NSE:3045", u.PubSubChannel())
	assert.Equal(t, "bars:NSE:3045", BarStream("NSE:3045"))
}
