package observer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject_NotifiesInOrder(t *testing.T) {
	var s Subject[int]
	var got []string

	s.Subscribe(func(v int) { got = append(got, "a") })
	id := s.Subscribe(func(v int) { got = append(got, "b") })
	s.Subscribe(func(v int) { got = append(got, "c") })

	s.Notify(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	require.True(t, s.Unsubscribe(id))
	assert.False(t, s.Unsubscribe(id))
	assert.Equal(t, 2, s.Len())

	got = nil
	s.Notify(2)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestSubject_UnsubscribeDuringNotify(t *testing.T) {
	var s Subject[string]
	var calls int
	var id uuid.UUID
	id = s.Subscribe(func(string) {
		calls++
		s.Unsubscribe(id)
	})
	s.Notify("x")
	s.Notify("y")
	assert.Equal(t, 1, calls)
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := NewFanOut[string](10)
	_, out1 := fo.Subscribe()
	_, out2 := fo.Subscribe()

	input := make(chan string, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- "NSE:3045"

	for i, out := range []<-chan string{out1, out2} {
		select {
		case v := <-out:
			assert.Equal(t, "NSE:3045", v, "out%d", i+1)
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for value", i+1)
		}
	}
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := NewFanOut[int](1)
	slowID, _ := fo.Subscribe()
	_, fast := fo.Subscribe()

	var drops atomic.Int32
	fo.OnDrop = func(id uuid.UUID, v int) {
		assert.Equal(t, slowID, id)
		drops.Add(1)
	}

	fo.Publish(1)
	<-fast
	fo.Publish(2)
	<-fast

	assert.Equal(t, int32(1), drops.Load())
	stats := fo.ChannelStats()
	require.Len(t, stats, 2)
	assert.Equal(t, ChannelStat{Len: 1, Cap: 1}, stats[0])
	assert.Equal(t, ChannelStat{Len: 0, Cap: 1}, stats[1])
}

func TestFanOut_CloseOnInputClose(t *testing.T) {
	fo := NewFanOut[int](4)
	_, out := fo.Subscribe()

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()
	close(input)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	_, ok := <-out
	assert.False(t, ok, "output should be closed")

	_, late := fo.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")
}

func TestFanOut_Unsubscribe(t *testing.T) {
	fo := NewFanOut[int](4)
	id, out := fo.Subscribe()
	fo.Unsubscribe(id)

	_, ok := <-out
	assert.False(t, ok)
	fo.Publish(1)
	assert.Empty(t, fo.ChannelStats())
}
