package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func sized(clock *fakeClock) *cache.Cache[string, int] {
	return cache.New[string, int](cache.Options[int]{
		TTL:      5 * time.Minute,
		Capacity: 100,
		Size:     func(v int) int { return v },
		Now:      clock.Now,
	})
}

func TestSet_EvictsOldestWhenOverCapacity(t *testing.T) {
	clock := newClock()
	c := sized(clock)

	c.Set("a", 40)
	clock.Advance(time.Second)
	c.Set("b", 40)
	clock.Advance(time.Second)
	c.Set("c", 40)

	_, ok := c.Get("a")
	assert.False(t, ok)
	b, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 40, b)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 80, c.Size())
}

func TestSet_LoopsEvictionUntilFits(t *testing.T) {
	clock := newClock()
	c := sized(clock)

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), 10)
	}
	require.Equal(t, 100, c.Size())

	c.Set("big", 75)
	assert.LessOrEqual(t, c.Size(), 100)
	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k9")
	assert.True(t, ok)
	_, ok = c.Get("k6")
	assert.False(t, ok)
}

func TestSet_SameTimestampEvictsInInsertionOrder(t *testing.T) {
	clock := newClock()
	c := sized(clock)

	c.Set("first", 50)
	c.Set("second", 50)
	c.Set("third", 50)

	_, ok := c.Get("first")
	assert.False(t, ok)
	_, ok = c.Get("second")
	assert.True(t, ok)
}

func TestSet_OversizedValueIsNotStored(t *testing.T) {
	c := sized(newClock())
	c.Set("small", 10)
	c.Set("huge", 101)

	_, ok := c.Get("huge")
	assert.False(t, ok)
	_, ok = c.Get("small")
	assert.True(t, ok)
	assert.Equal(t, 10, c.Size())
}

func TestSet_OverwriteReplacesSize(t *testing.T) {
	c := sized(newClock())
	c.Set("a", 60)
	c.Set("a", 30)
	assert.Equal(t, 30, c.Size())
	assert.Equal(t, 1, c.Len())
}

func TestGet_ExpiresLazily(t *testing.T) {
	clock := newClock()
	c := sized(clock)
	c.Set("a", 10)

	clock.Advance(5 * time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok, "entry exactly at TTL is still live")
	assert.Equal(t, 10, v)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 10, c.Size(), "expiry is only discovered on access")
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.Len())
}

func TestInsertedAt(t *testing.T) {
	clock := newClock()
	c := sized(clock)
	c.Set("a", 1)

	at, ok := c.InsertedAt("a")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), at)

	clock.Advance(6 * time.Minute)
	_, ok = c.InsertedAt("a")
	assert.False(t, ok)
}

func TestDeleteAndClear(t *testing.T) {
	c := sized(newClock())
	c.Set("a", 10)
	c.Set("b", 20)

	c.Delete("a")
	c.Delete("missing")
	assert.Equal(t, 20, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.Len())
}

func TestDefaults(t *testing.T) {
	c := cache.New[string, string](cache.Options[string]{})
	for i := 0; i < cache.DefaultCapacity+5; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
	}
	st := c.Stats()
	assert.Equal(t, cache.DefaultCapacity, st.Entries)
	assert.Equal(t, cache.DefaultCapacity, st.Capacity)
	assert.EqualValues(t, 5, st.Evictions)
}

func TestStats_HitsAndMisses(t *testing.T) {
	c := sized(newClock())
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("nope")

	st := c.Stats()
	assert.EqualValues(t, 2, st.Hits)
	assert.EqualValues(t, 1, st.Misses)
}

func TestConcurrentSetStaysBounded(t *testing.T) {
	c := sized(newClock())
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(fmt.Sprintf("%d-%d", g, i), 7)
				c.Get(fmt.Sprintf("%d-%d", g, i-1))
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 100)
}
