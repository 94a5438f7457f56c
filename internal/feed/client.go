package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"czsc-engine/internal/freq"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client is one WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// channels the client subscribed to; empty means everything
	subMu sync.RWMutex
	subs  map[string]bool
}

// request is a client message. Type is "subscribe", "unsubscribe" or
// "ping".
type request struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Freq   string `json:"freq"`
	ReqID  string `json:"req_id,omitempty"`
	Ping   int64  `json:"ping,omitempty"`
}

type reply struct {
	Type     string `json:"type"`
	ReqID    string `json:"req_id,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Seq      int64  `json:"channel_seq,omitempty"`
	Error    string `json:"error,omitempty"`
	Ping     int64  `json:"ping,omitempty"`
	ServerTS int64  `json:"server_ts,omitempty"`
}

func (c *Client) sendInitialState(since time.Time) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, e := range c.hub.latest {
		if !since.IsZero() && !e.TS.After(since) {
			continue
		}
		env, _ := json.Marshal(map[string]any{
			"channel":     channel,
			"data":        e.Data,
			"ts":          e.TS.Format(time.RFC3339Nano),
			"channel_seq": e.Seq,
			"initial":     true,
		})
		select {
		case c.send <- env:
		default:
		}
	}
}

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

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
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
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(msg, &req); err != nil {
			c.reply(reply{Type: "error", Error: "invalid message: " + err.Error()})
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req request) {
	switch req.Type {
	case "subscribe", "unsubscribe":
		f, err := freq.Parse(req.Freq)
		if err != nil || req.Symbol == "" {
			c.reply(reply{Type: "error", ReqID: req.ReqID, Error: "symbol and a valid freq are required"})
			return
		}
		ch := Channel(req.Symbol, f)
		c.subMu.Lock()
		if req.Type == "subscribe" {
			c.subs[ch] = true
		} else {
			delete(c.subs, ch)
		}
		c.subMu.Unlock()
		c.reply(reply{Type: req.Type + "d", ReqID: req.ReqID, Channel: ch, Seq: c.hub.ChannelSeq(ch)})

	case "ping":
		c.reply(reply{Type: "pong", Ping: req.Ping, ServerTS: time.Now().UnixMilli()})

	default:
		c.reply(reply{Type: "error", ReqID: req.ReqID, Error: "unknown type " + req.Type})
	}
}

// reply queues a control message without blocking the read loop.
func (c *Client) reply(r reply) {
	data, _ := json.Marshal(r)
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// matches reports whether the client wants messages on channel.
func (c *Client) matches(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[channel]
}
