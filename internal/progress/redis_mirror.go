package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisMirror republishes progress events on Redis pub/sub channels so
// API processes on other nodes can relay them to their own subscribers.
type RedisMirror struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisMirror creates a mirror publishing to "{prefix}:{room}".
func NewRedisMirror(rdb *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "brandkit:progress"
	}
	return &RedisMirror{rdb: rdb, prefix: prefix}
}

func (m *RedisMirror) Publish(ctx context.Context, room string, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	return m.rdb.Publish(ctx, m.prefix+":"+room, data).Err()
}
