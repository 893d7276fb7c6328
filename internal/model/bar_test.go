package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBarValidate(t *testing.T) {
	good := Bar{
		Exchange: "NSE", Token: "2885",
		TS:   time.Date(2026, 1, 2, 3, 45, 0, 0, time.UTC),
		Open: 10, High: 11, Low: 9, Close: 10, Volume: 100,
	}

	tests := []struct {
		name   string
		mutate func(b *Bar)
		ok     bool
	}{
		{"valid", func(b *Bar) {}, true},
		{"flat bar", func(b *Bar) { b.High, b.Low = 10, 10 }, true},
		{"missing token", func(b *Bar) { b.Token = "" }, false},
		{"missing timestamp", func(b *Bar) { b.TS = time.Time{} }, false},
		{"nan close", func(b *Bar) { b.Close = math.NaN() }, false},
		{"infinite high", func(b *Bar) { b.High = math.Inf(1) }, false},
		{"high below low", func(b *Bar) { b.High, b.Low = 5, 10 }, false},
		{"negative volume", func(b *Bar) { b.Volume = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := good
			tt.mutate(&b)
			err := b.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidBar)
			}
		})
	}
}
