package idgen

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClock reads the Redis server TIME so every gridstore process
// sharing the backend allocates IDs against the same clock.
type RedisClock struct {
	client *redis.Client
}

func NewRedisClock(client *redis.Client) *RedisClock {
	return &RedisClock{client: client}
}

func (r *RedisClock) Now() int64 {
	res, err := r.client.Time(context.Background()).Result()
	if err != nil {
		// Redis unreachable: local time keeps ID allocation alive.
		return time.Now().UnixMilli()
	}
	return res.Unix()*1000 + int64(res.Nanosecond())/1000000
}
