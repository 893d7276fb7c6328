package gateway

import (
	"strconv"

	"trading-chartsv1/internal/model"
)

// Broadcast records u as the latest update of its key and sends it to every
// subscribed client. Clients with a full send buffer miss the update; the
// per-key sequence lets them detect the gap and reconnect with since=.
func (h *Hub) Broadcast(u model.Update) {
	h.mu.Lock()
	h.seqs[u.Key]++
	seq := h.seqs[u.Key]
	env := buildEnvelope(u.Key, seq, u.JSON())
	h.latest[u.Key] = env
	rb, ok := h.replay[u.Key]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replay[u.Key] = rb
	}
	h.mu.Unlock()
	rb.Push(seq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(u.Key) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

// buildEnvelope hand-crafts {"type":"update","key":..,"seq":..,"data":..}.
// key is a series key and needs no escaping.
func buildEnvelope(key string, seq int64, data []byte) []byte {
	buf := make([]byte, 0, len(key)+len(data)+64)
	buf = append(buf, `{"type":"update","key":"`...)
	buf = append(buf, key...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf
}
