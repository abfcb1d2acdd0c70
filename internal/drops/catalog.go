package drops

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CatalogSource is the read-only origin of drop data. GetDrop returns
// ErrDropNotFound when the id is unknown.
type CatalogSource interface {
	GetDrop(ctx context.Context, id string) (*Drop, error)
}

type CatalogOptions struct {
	TTL      time.Duration
	Capacity int
	Now      func() time.Time
	Logger   *zap.Logger
}

// Catalog fronts a CatalogSource with a bounded TTL cache and tracks the
// prefetch state of each drop. Drops it returns are shared and must not be
// modified.
type Catalog struct {
	source CatalogSource
	cache  *cache.Cache[string, *Drop]
	log    *zap.Logger
	now    func() time.Time
	group  singleflight.Group

	mu     sync.Mutex
	states map[string]*LoadState
	gens   map[string]uint64
	epoch  uint64
}

func NewCatalog(source CatalogSource, opts CatalogOptions) *Catalog {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Catalog{
		source: source,
		cache: cache.New[string, *Drop](cache.Options[*Drop]{
			TTL:      opts.TTL,
			Capacity: opts.Capacity,
			Now:      opts.Now,
		}),
		log:    opts.Logger,
		now:    opts.Now,
		states: make(map[string]*LoadState),
		gens:   make(map[string]uint64),
	}
}

// Drop returns the drop from cache, fetching from the source on a miss.
func (c *Catalog) Drop(ctx context.Context, id string) (*Drop, error) {
	if d, ok := c.cache.Get(id); ok {
		return d, nil
	}
	return c.fetch(ctx, id)
}

// Prefetch warms the cache for ids that are missing or expired. Fetch
// failures are recorded on the drop's LoadState, not returned. Concurrent
// fetches of the same id are coalesced.
func (c *Catalog) Prefetch(ctx context.Context, ids []string) {
	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, fresh := c.cache.InsertedAt(id); fresh {
			continue
		}

		c.transition(id, LoadLoading, "")
		g.Go(func() error {
			if _, err := c.fetch(gctx, id); err != nil {
				c.log.Warn("prefetch drop failed", zap.String("drop_id", id), zap.Error(err))
				c.transition(id, LoadError, err.Error())
				return nil
			}
			c.transition(id, LoadSuccess, "")
			return nil
		})
	}
	_ = g.Wait()
}

// Invalidate drops one cached drop, or all of them when id is empty. Fetches
// in flight at that moment do not repopulate the cache.
func (c *Catalog) Invalidate(id string) {
	c.mu.Lock()
	if id == "" {
		c.epoch++
	} else {
		c.gens[id]++
	}
	c.mu.Unlock()

	if id == "" {
		c.cache.Clear()
		return
	}
	c.cache.Delete(id)
}

// State reports the prefetch state of a drop; unknown drops are idle.
func (c *Catalog) State(id string) LoadState {
	c.mu.Lock()
	st, ok := c.states[id]
	var out LoadState
	if ok {
		out = *st
	} else {
		out = LoadState{DropID: id, Status: LoadIdle}
	}
	c.mu.Unlock()

	if at, ok := c.cache.InsertedAt(id); ok {
		out.FetchedAt = at
	}
	return out
}

func (c *Catalog) CacheStats() cache.Stats { return c.cache.Stats() }

func (c *Catalog) fetch(ctx context.Context, id string) (*Drop, error) {
	gen := c.generation(id)
	v, err, _ := c.group.Do(id, func() (any, error) {
		d, err := c.source.GetDrop(ctx, id)
		if err != nil {
			if errors.Is(err, ErrDropNotFound) {
				return nil, err
			}
			return nil, &FetchError{DropID: id, Err: err}
		}
		if d == nil {
			return nil, ErrDropNotFound
		}
		if c.generation(id) == gen {
			c.cache.Set(id, d)
		}
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Drop), nil
}

func (c *Catalog) generation(id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.gens[id]
}

// transition applies a load-state change if the state machine allows it.
func (c *Catalog) transition(id string, to LoadStatus, msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[id]
	if !ok {
		st = &LoadState{DropID: id, Status: LoadIdle}
		c.states[id] = st
	}
	if !CanTransition(st.Status, to) {
		return false
	}
	st.Status = to
	st.Error = msg
	return true
}
