package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	"github.com/redis/go-redis/v9"
)

// SessionStore persists engine snapshots per user.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = TTLSession
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func (s *SessionStore) Load(ctx context.Context, userID string) (drops.Snapshot, bool, error) {
	b, err := s.rdb.Get(ctx, fmt.Sprintf(KeySession, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return drops.Snapshot{}, false, nil
	}
	if err != nil {
		return drops.Snapshot{}, false, err
	}
	snap, err := drops.UnmarshalSnapshot(b)
	if err != nil {
		return drops.Snapshot{}, false, fmt.Errorf("session %s: %w", userID, err)
	}
	return snap, true, nil
}

// Save also refreshes the TTL.
func (s *SessionStore) Save(ctx context.Context, userID string, snap drops.Snapshot) error {
	b, err := snap.Marshal()
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, fmt.Sprintf(KeySession, userID), b, s.ttl).Err()
}

func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeySession, userID)).Err()
}
