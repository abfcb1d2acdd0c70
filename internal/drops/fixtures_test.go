package drops_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	"github.com/stretchr/testify/require"
)

func ptr(i int) *int { return &i }

var (
	standard = drops.ShippingOption{ID: "standard", Label: "Standard", PriceCents: 450}
	express  = drops.ShippingOption{ID: "express", Label: "Express", PriceCents: 1290}
)

// d1: one stock-limited variant and one uncapped variant without stock.
func d1() drops.Drop {
	return drops.Drop{
		ID:               "D1",
		Name:             "Hoodie",
		Currency:         "EUR",
		MaxPerUser:       ptr(5),
		DefaultVariantID: "V1",
		ShippingOptions:  []drops.ShippingOption{standard, express},
		Progress:         0.4,
		InterestCount:    10,
		Variants: []drops.Variant{
			{
				ID:                      "V1",
				Label:                   "Black / M",
				BasePriceCents:          999,
				Stock:                   3,
				MinQuantity:             2,
				ShippingOptionIDs:       []string{"standard", "express"},
				DefaultShippingOptionID: "standard",
				QuickQuantityOptions:    []int{1, 2, 3, 4},
				OriginOptions: []drops.OriginOption{
					{ID: "CN", Label: "China"},
					{ID: "DE", Label: "Germany", IsDefault: true},
					{ID: "EU", Label: "EU"},
				},
			},
			{
				ID:                "V1-L",
				Label:             "Black / L",
				BasePriceCents:    1099,
				Stock:             0,
				MinQuantity:       1,
				MaxQuantity:       ptr(10),
				InviteRequired:    true,
				ShippingOptionIDs: []string{"standard"},
			},
		},
	}
}

// d2: variants with disjoint shipping allow-lists.
func d2() drops.Drop {
	return drops.Drop{
		ID:               "D2",
		Name:             "Vinyl",
		Currency:         "EUR",
		DefaultVariantID: "V-std",
		ShippingOptions:  []drops.ShippingOption{standard, express},
		Variants: []drops.Variant{
			{ID: "V-std", BasePriceCents: 2999, Stock: 50, MinQuantity: 1, ShippingOptionIDs: []string{"standard", "express"}, DefaultShippingOptionID: "standard"},
			{ID: "V2", BasePriceCents: 3999, Stock: 5, MinQuantity: 1, ShippingOptionIDs: []string{"express"}},
		},
	}
}

// d3: no shipping at all, digital goods.
func d3() drops.Drop {
	return drops.Drop{
		ID:               "D3",
		Name:             "Pass",
		Currency:         "USD",
		DefaultVariantID: "P",
		Variants:         []drops.Variant{{ID: "P", BasePriceCents: 500, Stock: 100, MinQuantity: 1}},
	}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func seqIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}

// countingSource wraps a source and counts fetches per id.
type countingSource struct {
	inner drops.CatalogSource
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	delay time.Duration
}

func newCountingSource(t *testing.T, list ...drops.Drop) *countingSource {
	t.Helper()
	static, err := drops.NewStaticCatalog(list)
	require.NoError(t, err)
	return &countingSource{inner: static, calls: map[string]int{}, fail: map[string]error{}}
}

func (s *countingSource) GetDrop(ctx context.Context, id string) (*drops.Drop, error) {
	s.mu.Lock()
	s.calls[id]++
	err := s.fail[id]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return s.inner.GetDrop(ctx, id)
}

func (s *countingSource) Calls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *countingSource) SetFail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, id)
		return
	}
	s.fail[id] = err
}

type recordingCart struct {
	mu    sync.Mutex
	items []string
	err   error
}

func (c *recordingCart) AddItem(_ context.Context, d *drops.Drop, v drops.Variant, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.items = append(c.items, fmt.Sprintf("%s/%s x%d", d.ID, v.ID, qty))
	return nil
}

type engineFixture struct {
	engine  *drops.Engine
	source  *countingSource
	clock   *testClock
	ledger  *drops.MemoryLedger
	cart    *recordingCart
	catalog *drops.Catalog
}

// sibling builds another engine over the fixture's catalog and ledger.
func (f engineFixture) sibling(userID string) *drops.Engine {
	return drops.NewEngine(drops.User{ID: userID, Handle: "@" + userID}, drops.EngineDeps{
		Catalog: f.catalog,
		Ledger:  f.ledger,
		Cart:    f.cart,
		Now:     f.clock.Now,
		NewID:   seqIDs(userID + "-res"),
	})
}

func newEngine(t *testing.T) engineFixture {
	t.Helper()
	clock := newTestClock()
	src := newCountingSource(t, d1(), d2(), d3())
	ledger := drops.NewMemoryLedger(drops.LedgerOptions{Now: clock.Now, NewID: seqIDs("entry"), SampleCap: 3})
	cart := &recordingCart{}
	catalog := drops.NewCatalog(src, drops.CatalogOptions{Now: clock.Now})
	e := drops.NewEngine(drops.User{ID: "u1", Handle: "@alice"}, drops.EngineDeps{
		Catalog: catalog,
		Ledger:  ledger,
		Cart:    cart,
		Now:     clock.Now,
		NewID:   seqIDs("res"),
	})
	return engineFixture{engine: e, source: src, clock: clock, ledger: ledger, cart: cart, catalog: catalog}
}
