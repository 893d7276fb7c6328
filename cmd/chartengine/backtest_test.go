package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrom(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)

	got, err := parseFrom("", ist)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseFrom("2026-01-02", ist)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, ist)))

	got, err = parseFrom("2026-01-02T03:45:00Z", ist)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 1, 2, 3, 45, 0, 0, time.UTC)))

	_, err = parseFrom("last week", ist)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"SMA:20", "EMA:9"}, splitList(" SMA:20, ,EMA:9 "))
	assert.Nil(t, splitList(""))
}
