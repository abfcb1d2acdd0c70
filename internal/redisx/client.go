package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// MarkSeen records an event id for a service and reports whether it was
// already recorded. SETNX keeps concurrent consumers from both passing.
func MarkSeen(ctx context.Context, rdb *redis.Client, service, id string) (seen bool, err error) {
	ok, err := rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), "1", TTLDedup).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// ForgetSeen drops a dedup mark so a failed event can be redelivered.
func ForgetSeen(ctx context.Context, rdb *redis.Client, service, id string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}
