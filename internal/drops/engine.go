package drops

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoCart = errors.New("cart sink not configured")

// CartSink receives the resolved selection at checkout.
type CartSink interface {
	AddItem(ctx context.Context, drop *Drop, variant Variant, quantity int) error
}

type EngineDeps struct {
	Catalog    *Catalog
	Ledger     Ledger
	Cart       CartSink
	HistoryCap int
	Now        func() time.Time
	NewID      func() string
	Logger     *zap.Logger
}

// Engine holds one user's selections, reservations and interest flags.
// Every mutating command re-resolves the whole selection and stores it in a
// single step, so readers never observe a partially updated selection.
type Engine struct {
	user       User
	catalog    *Catalog
	ledger     Ledger
	cart       CartSink
	historyCap int
	now        func() time.Time
	newID      func() string
	log        *zap.Logger

	mu         sync.Mutex
	rev        uint64
	openDrop   string
	selections map[string]Selection
	history    []Reservation
	last       *Reservation
}

func NewEngine(user User, deps EngineDeps) *Engine {
	if user.ID == "" {
		user.ID = "anonymous"
	}
	if deps.Ledger == nil {
		deps.Ledger = NewMemoryLedger(LedgerOptions{Now: deps.Now, NewID: deps.NewID})
	}
	if deps.HistoryCap <= 0 {
		deps.HistoryCap = DefaultHistoryCap
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{
		user:       user,
		catalog:    deps.Catalog,
		ledger:     deps.Ledger,
		cart:       deps.Cart,
		historyCap: deps.HistoryCap,
		now:        deps.Now,
		newID:      deps.NewID,
		log:        deps.Logger.With(zap.String("user_id", user.ID)),
		selections: make(map[string]Selection),
	}
}

func (e *Engine) User() User { return e.user }

// Revision changes whenever state covered by Snapshot changes, so callers
// can skip persisting after a read.
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rev
}

// SelectDrop marks a drop as the one currently open in the UI.
func (e *Engine) SelectDrop(ctx context.Context, dropID string) error {
	if _, err := e.catalog.Drop(ctx, dropID); err != nil {
		return err
	}
	e.mu.Lock()
	if e.openDrop != dropID {
		e.openDrop = dropID
		e.rev++
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) CloseDrop() {
	e.mu.Lock()
	if e.openDrop != "" {
		e.openDrop = ""
		e.rev++
	}
	e.mu.Unlock()
}

// OpenDrop returns the currently open drop id, or "".
func (e *Engine) OpenDrop() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openDrop
}

// Selection returns the resolved selection for a drop, creating the default
// one on first access.
func (e *Engine) Selection(ctx context.Context, dropID string) (ResolvedSelection, error) {
	return e.update(ctx, dropID, func(cur Selection) Selection { return cur })
}

func (e *Engine) SetVariant(ctx context.Context, dropID, variantID string) (ResolvedSelection, error) {
	return e.update(ctx, dropID, func(cur Selection) Selection {
		cur.VariantID = variantID
		return cur
	})
}

func (e *Engine) SetQuantity(ctx context.Context, dropID string, quantity int) (ResolvedSelection, error) {
	return e.update(ctx, dropID, func(cur Selection) Selection {
		cur.Quantity = quantity
		return cur
	})
}

func (e *Engine) IncrementQuantity(ctx context.Context, dropID string, delta int) (ResolvedSelection, error) {
	return e.update(ctx, dropID, func(cur Selection) Selection {
		cur.Quantity = saturatingAdd(cur.Quantity, delta)
		return cur
	})
}

func (e *Engine) SetShipping(ctx context.Context, dropID, shippingID string) (ResolvedSelection, error) {
	return e.update(ctx, dropID, func(cur Selection) Selection {
		cur.ShippingOptionID = shippingID
		return cur
	})
}

func (e *Engine) SetOrigin(ctx context.Context, dropID, originID string) (ResolvedSelection, error) {
	return e.update(ctx, dropID, func(cur Selection) Selection {
		cur.OriginOptionID = originID
		return cur
	})
}

// update applies fn to the current resolved selection, re-resolves the
// result and stores it.
func (e *Engine) update(ctx context.Context, dropID string, fn func(Selection) Selection) (ResolvedSelection, error) {
	d, err := e.catalog.Drop(ctx, dropID)
	if err != nil {
		return ResolvedSelection{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stored, ok := e.selections[dropID]
	cur := Resolve(d, stored).Selection()
	next := Resolve(d, fn(cur))
	if !ok || stored != next.Selection() {
		e.selections[dropID] = next.Selection()
	}
	// repairs and defaults are recomputed on restore, only edits count
	if next.Selection() != cur {
		e.rev++
	}
	return next, nil
}

// StartReservation prices the current selection and records it as the last
// reservation and at the head of the bounded history.
func (e *Engine) StartReservation(ctx context.Context, dropID string) (Reservation, error) {
	d, err := e.catalog.Drop(ctx, dropID)
	if err != nil {
		return Reservation{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := NewReservation(d, e.selections[dropID], e.newID(), e.now())
	e.selections[dropID] = Selection{
		VariantID:        r.VariantID,
		Quantity:         r.Quantity,
		ShippingOptionID: r.ShippingID,
		OriginOptionID:   r.OriginOptionID,
	}
	e.history = prepend(e.history, r, e.historyCap)
	last := r
	e.last = &last
	e.rev++

	e.log.Info("reservation started",
		zap.String("reservation_id", r.ID),
		zap.String("drop_id", r.DropID),
		zap.String("variant_id", r.VariantID),
		zap.Int("quantity", r.Quantity),
		zap.Int("total_cents", r.TotalCents),
	)
	return r, nil
}

// StartPreorder is StartReservation for drops sold as preorders.
func (e *Engine) StartPreorder(ctx context.Context, dropID string) (Reservation, error) {
	return e.StartReservation(ctx, dropID)
}

// ReservationHistory returns reservations most recent first.
func (e *Engine) ReservationHistory() []Reservation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Reservation{}, e.history...)
}

func (e *Engine) LastReservation() (Reservation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Reservation{}, false
	}
	return *e.last, true
}

func (e *Engine) ClearLastReservation() {
	e.mu.Lock()
	if e.last != nil {
		e.last = nil
		e.rev++
	}
	e.mu.Unlock()
}

// ToggleInterest flips the user's interest in a drop.
func (e *Engine) ToggleInterest(ctx context.Context, dropID string) (Interest, error) {
	if _, err := e.catalog.Drop(ctx, dropID); err != nil {
		return Interest{}, err
	}
	if _, err := e.ledger.ToggleInterest(ctx, dropID, e.user); err != nil {
		return Interest{}, fmt.Errorf("toggle interest %s: %w", dropID, err)
	}

	e.mu.Lock()
	e.rev++
	e.mu.Unlock()

	return e.Interest(ctx, dropID)
}

// Interest returns the drop's interest count (catalog base plus ledger
// members) and recent entries.
func (e *Engine) Interest(ctx context.Context, dropID string) (Interest, error) {
	d, err := e.catalog.Drop(ctx, dropID)
	if err != nil {
		return Interest{}, err
	}
	in, err := e.ledger.Interest(ctx, dropID, e.user.ID)
	if err != nil {
		return Interest{}, fmt.Errorf("interest %s: %w", dropID, err)
	}
	in.DropID = dropID
	in.Count += d.InterestCount
	return in, nil
}

func (e *Engine) ApplyProgress(ctx context.Context, dropID string, progress float64) (ProgressState, error) {
	if _, err := e.catalog.Drop(ctx, dropID); err != nil {
		return ProgressState{}, err
	}
	ps, err := e.ledger.ApplyProgress(ctx, dropID, progress)
	if err != nil {
		return ProgressState{}, fmt.Errorf("apply progress %s: %w", dropID, err)
	}
	return ps, nil
}

// Progress returns the live progress of a drop, falling back to the
// catalog value when none was applied.
func (e *Engine) Progress(ctx context.Context, dropID string) (ProgressState, error) {
	d, err := e.catalog.Drop(ctx, dropID)
	if err != nil {
		return ProgressState{}, err
	}
	ps, ok, err := e.ledger.Progress(ctx, dropID)
	if err != nil {
		return ProgressState{}, fmt.Errorf("progress %s: %w", dropID, err)
	}
	if ok {
		return ps, nil
	}
	ps = ProgressState{DropID: dropID, Progress: ClampProgress(d.Progress), Status: DropStatusLive, Activity: []ActivityEntry{}}
	if ps.Progress >= 1 {
		ps.Status = DropStatusLocked
	}
	return ps, nil
}

// Checkout hands the resolved selection to the cart sink.
func (e *Engine) Checkout(ctx context.Context, dropID string) (ResolvedSelection, error) {
	if e.cart == nil {
		return ResolvedSelection{}, ErrNoCart
	}
	d, err := e.catalog.Drop(ctx, dropID)
	if err != nil {
		return ResolvedSelection{}, err
	}
	sel, err := e.Selection(ctx, dropID)
	if err != nil {
		return ResolvedSelection{}, err
	}
	if err := e.cart.AddItem(ctx, d, sel.Variant, sel.Quantity); err != nil {
		return ResolvedSelection{}, fmt.Errorf("add %s to cart: %w", dropID, err)
	}
	return sel, nil
}

func (e *Engine) PrefetchDropData(ctx context.Context, ids []string) {
	e.catalog.Prefetch(ctx, ids)
}

func (e *Engine) InvalidateCache(dropID string) {
	e.catalog.Invalidate(dropID)
}

func (e *Engine) LoadState(dropID string) LoadState {
	return e.catalog.State(dropID)
}

// saturatingAdd adds without wrapping; out-of-range results are clamped later.
func saturatingAdd(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}
