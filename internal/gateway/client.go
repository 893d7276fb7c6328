package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client is one WebSocket peer. With no subscribed keys it receives every
// update.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	keys  map[string]bool
}

// controlMsg is a message sent by the client.
//
//	{"type":"SUBSCRIBE","series":["NSE:2885"]}
//	{"type":"UNSUBSCRIBE","series":["NSE:2885"]}
//	{"type":"PING","ping":1735790000000}
type controlMsg struct {
	Type   string   `json:"type"`
	Series []string `json:"series"`
	Ping   int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, keys []string) *Client {
	c := &Client{conn: conn, send: make(chan []byte, h.sendBuffer), hub: h, keys: make(map[string]bool)}
	for _, k := range keys {
		c.keys[k] = true
	}
	return c
}

func (c *Client) wants(key string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.keys) == 0 || c.keys[key]
}

// sendLatest queues the latest envelope of every subscribed key.
func (c *Client) sendLatest() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for key, env := range c.hub.latest {
		if !c.wants(key) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

// sendReplay queues every buffered envelope newer than afterSeq for the
// subscribed keys.
func (c *Client) sendReplay(afterSeq int64) {
	c.hub.mu.RLock()
	var bufs []*ReplayBuffer
	for key, rb := range c.hub.replay {
		if c.wants(key) {
			bufs = append(bufs, rb)
		}
	}
	c.hub.mu.RUnlock()

	for _, rb := range bufs {
		for _, env := range rb.Since(afterSeq) {
			select {
			case c.send <- env:
			default:
				return
			}
		}
	}
}

// writePump coalesces queued envelopes into one newline-separated frame and
// pings the peer periodically.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			for n := len(c.send); n > 0; n-- {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "SUBSCRIBE":
			c.subMu.Lock()
			for _, k := range msg.Series {
				c.keys[k] = true
			}
			c.subMu.Unlock()
		case "UNSUBSCRIBE":
			c.subMu.Lock()
			for _, k := range msg.Series {
				delete(c.keys, k)
			}
			c.subMu.Unlock()
		case "PING":
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "PONG",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.hub.mu.RLock()
			if c.hub.clients[c] {
				select {
				case c.send <- pong:
				default:
				}
			}
			c.hub.mu.RUnlock()
		}
	}
}
