// Package gateway streams chart updates to WebSocket clients.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"
)

// Source delivers updates to the hub until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, deliver func(model.Update)) error
}

// Hub tracks WebSocket clients and fans updates out to the clients
// subscribed to their series key.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string][]byte // key → last envelope
	seqs    map[string]int64  // per-key sequence for gap detection
	replay  map[string]*ReplayBuffer

	upgrader   websocket.Upgrader
	sendBuffer int
	replaySize int
	log        *logger.Logger

	// OnClientCount is called with the new client count after a client
	// connects or disconnects.
	OnClientCount func(n int)
}

// NewHub creates a hub. replaySize is the number of envelopes kept per key
// for reconnecting clients.
func NewHub(replaySize int, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string][]byte),
		seqs:    make(map[string]int64),
		replay:  make(map[string]*ReplayBuffer),
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
		sendBuffer: 256,
		replaySize: replaySize,
		log:        log.Component("gateway"),
	}
}

// Run feeds the hub from src. Blocks until ctx is cancelled or src fails.
func (h *Hub) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, h.Broadcast)
}

// ServeHTTP upgrades the request and registers the client.
//
//	/ws?series=NSE:2885,NSE:3045&since=41
//
// series limits the stream to the listed keys; without it the client gets
// every key. since replays buffered envelopes with a later sequence number;
// without it the client first receives the latest envelope of each key.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", logger.ErrorField(err))
		return
	}
	conn.EnableWriteCompression(true)

	c := newClient(h, conn, splitKeys(r.URL.Query().Get("series")))

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.clientCountChanged(count)
	h.log.Info("ws client connected", logger.IntField("clients", count))

	if since := r.URL.Query().Get("since"); since != "" {
		if seq, err := strconv.ParseInt(since, 10, 64); err == nil {
			c.sendReplay(seq)
		} else {
			c.sendLatest()
		}
	} else {
		c.sendLatest()
	}

	go c.writePump()
	go c.readPump()
}

// removeClient unregisters c and closes its send channel once.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.clientCountChanged(count)
	h.log.Info("ws client disconnected", logger.IntField("clients", count))
}

func (h *Hub) clientCountChanged(n int) {
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the last sequence number sent for key.
func (h *Hub) Seq(key string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[key]
}

// Replay returns the buffered envelopes of key with a sequence number above
// afterSeq.
func (h *Hub) Replay(key string, afterSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replay[key]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Since(afterSeq)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
