// Package feed streams confirmed strokes to WebSocket clients. Strokes come
// either straight from a trader (PublishBI) or relayed from Redis pub/sub
// (Relay). Every message carries a per-channel sequence number so clients
// can detect gaps and backfill them from /api/missed.
package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/metrics"
	"czsc-engine/internal/model"
	redisstore "czsc-engine/internal/store/redis"
)

const (
	defaultBacklog = 500 // envelopes kept per channel for gap backfill
	sendQueue      = 256
)

// Hub tracks WebSocket clients and fans stroke messages out to them.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	backlogs    map[string]*Backlog

	backlogSize int
	prom        *metrics.Metrics
	log         *slog.Logger
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		backlogs:    make(map[string]*Backlog),
		backlogSize: defaultBacklog,
		prom:        m,
		log:         slog.Default().With(slog.String("component", "feed")),
	}
}

// Channel names the feed channel of symbol's strokes at f.
func Channel(symbol string, f freq.Freq) string {
	return "bi:" + symbol + ":" + f.String()
}

// PublishBI broadcasts a confirmed stroke.
func (h *Hub) PublishBI(symbol string, f freq.Freq, bi model.BI) error {
	data, err := json.Marshal(redisstore.NewBIMessage(symbol, f, bi))
	if err != nil {
		return fmt.Errorf("marshal bi: %w", err)
	}
	h.Broadcast(Channel(symbol, f), data)
	return nil
}

// Broadcast wraps data in an envelope and sends it to every client
// subscribed to channel. Slow clients miss messages rather than block.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq
	bl, ok := h.backlogs[channel]
	if !ok {
		bl = NewBacklog(h.backlogSize)
		h.backlogs[channel] = bl
	}
	h.mu.Unlock()

	env := buildEnvelope(channel, data, now, seq, channelSeq)
	bl.Push(channelSeq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(channel) {
			continue
		}
		select {
		case c.send <- env:
		default:
			if h.prom != nil {
				h.prom.FeedDropped.Inc()
			}
		}
	}
	if h.prom != nil {
		h.prom.FeedMessages.Inc()
	}
}

// buildEnvelope appends the envelope JSON by hand; data is already JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// Attach registers a connected WebSocket and starts its pumps. Entries
// newer than since (all when zero) are sent first, marked initial.
func (h *Hub) Attach(conn *websocket.Conn, since time.Time) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, sendQueue),
		hub:  h,
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.prom != nil {
		h.prom.FeedClients.Set(float64(count))
	}
	h.log.Info("ws client connected", slog.Int("clients", count))

	c.sendInitialState(since)
	go c.writePump()
	go c.readPump()
	return c
}

// remove unregisters c and closes its queue.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	if h.prom != nil {
		h.prom.FeedClients.Set(float64(count))
	}
	h.log.Info("ws client disconnected", slog.Int("clients", count))
}

// Latest returns the newest payload of every channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		out[k] = v.Data
	}
	return out
}

// Missed returns the buffered envelopes of channel with channel_seq in
// [from, to].
func (h *Hub) Missed(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	bl, ok := h.backlogs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := bl.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// ChannelSeq returns the last sequence number sent on channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
