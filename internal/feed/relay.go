package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	redisstore "czsc-engine/internal/store/redis"
)

// Relay forwards stroke messages from a Redis subscription (see
// redis.Publisher.PSubscribeBI) until ctx is cancelled or the
// subscription closes.
func (h *Hub) Relay(ctx context.Context, ps *goredis.PubSub) {
	defer ps.Close()
	h.relay(ctx, ps.Channel())
}

func (h *Hub) relay(ctx context.Context, ch <-chan *goredis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var bi redisstore.BIMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bi); err != nil || bi.Symbol == "" {
				h.log.Warn("skipping malformed stroke message", slog.String("channel", msg.Channel), slog.Any("error", err))
				continue
			}
			h.Broadcast(Channel(bi.Symbol, bi.Freq), []byte(msg.Payload))
		}
	}
}
