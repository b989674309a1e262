package progress

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay is the receiving half of the RedisMirror: it subscribes to
// the mirror's pub/sub channels and feeds remote progress events into
// the local Bridge. API processes run one so events published by worker
// processes reach their own SSE subscribers.
type RedisRelay struct {
	rdb    *redis.Client
	prefix string
	bridge *Bridge
	log    zerolog.Logger

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisRelay pairs with a RedisMirror publishing on the same prefix.
func NewRedisRelay(rdb *redis.Client, prefix string, bridge *Bridge, log zerolog.Logger) *RedisRelay {
	if prefix == "" {
		prefix = "brandkit:progress"
	}
	return &RedisRelay{rdb: rdb, prefix: prefix, bridge: bridge, log: log}
}

// Start subscribes to every room channel under the prefix and relays
// until Stop. Events published before the subscription is established
// are missed, like any other progress event a client was not around for.
func (r *RedisRelay) Start(ctx context.Context) {
	r.pubsub = r.rdb.PSubscribe(ctx, r.prefix+":*")
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for msg := range r.pubsub.Channel() {
			r.deliver(msg.Channel, []byte(msg.Payload))
		}
	}()
	r.log.Info().Str("pattern", r.prefix+":*").Msg("progress: redis relay started")
}

// Stop closes the subscription and waits for the relay goroutine.
func (r *RedisRelay) Stop() {
	if r.pubsub == nil {
		return
	}
	_ = r.pubsub.Close()
	r.wg.Wait()
}

func (r *RedisRelay) deliver(channel string, data []byte) {
	room := strings.TrimPrefix(channel, r.prefix+":")
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		r.log.Warn().Err(err).Str("channel", channel).Msg("progress: undecodable relayed event")
		return
	}
	r.bridge.Deliver(room, evt)
}
