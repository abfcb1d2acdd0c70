package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/cache"
	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultEngineTTL      = 30 * time.Minute
	DefaultEngineCapacity = 10000
)

// SnapshotStore persists engine state between processes.
type SnapshotStore interface {
	Load(ctx context.Context, userID string) (drops.Snapshot, bool, error)
	Save(ctx context.Context, userID string, s drops.Snapshot) error
}

// EngineFactory builds a fresh engine for a user.
type EngineFactory func(u drops.User) *drops.Engine

type SessionsOptions struct {
	TTL      time.Duration
	Capacity int
	Logger   *zap.Logger
	Now      func() time.Time
}

// Sessions keeps recently used engines in memory and restores the rest
// from the snapshot store. An engine stays cached while it is used; TTL
// counts from the last access.
type Sessions struct {
	store     SnapshotStore
	newEngine EngineFactory
	log       *zap.Logger

	loads   singleflight.Group
	engines *cache.Cache[string, *drops.Engine]
}

func NewSessions(store SnapshotStore, factory EngineFactory, opts SessionsOptions) *Sessions {
	if opts.TTL <= 0 {
		opts.TTL = DefaultEngineTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultEngineCapacity
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sessions{
		store:     store,
		newEngine: factory,
		log:       opts.Logger,
		engines:   cache.New[string, *drops.Engine](cache.Options[*drops.Engine]{TTL: opts.TTL, Capacity: opts.Capacity, Now: opts.Now}),
	}
}

// Engine returns the user's engine, restoring its snapshot on first use.
// Concurrent first uses for one user share a single load.
func (s *Sessions) Engine(ctx context.Context, u drops.User) (*drops.Engine, error) {
	if e, ok := s.touch(u.ID); ok {
		return e, nil
	}
	v, err, _ := s.loads.Do(u.ID, func() (any, error) {
		if e, ok := s.touch(u.ID); ok {
			return e, nil
		}
		e := s.newEngine(u)
		if s.store != nil {
			snap, ok, err := s.store.Load(context.WithoutCancel(ctx), u.ID)
			if err != nil {
				return nil, fmt.Errorf("load session %s: %w", u.ID, err)
			}
			if ok {
				e.Restore(snap)
			}
		}
		s.engines.Set(u.ID, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*drops.Engine), nil
}

// touch returns a cached engine and restarts its TTL.
func (s *Sessions) touch(userID string) (*drops.Engine, bool) {
	e, ok := s.engines.Get(userID)
	if ok {
		s.engines.Set(userID, e)
	}
	return e, ok
}

// Save persists the engine's snapshot. Failures are logged; the in-memory
// engine stays authoritative for this process.
func (s *Sessions) Save(ctx context.Context, e *drops.Engine) {
	if s.store == nil {
		return
	}
	snap, err := e.Snapshot(ctx)
	if err == nil {
		err = s.store.Save(ctx, e.User().ID, snap)
	}
	if err != nil {
		s.log.Warn("save session", zap.String("user_id", e.User().ID), zap.Error(err))
	}
}

// SaveIfChanged saves e only when its revision moved past since.
func (s *Sessions) SaveIfChanged(ctx context.Context, e *drops.Engine, since uint64) {
	if e.Revision() == since {
		return
	}
	s.Save(ctx, e)
}
