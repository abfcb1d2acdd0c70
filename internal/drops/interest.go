package drops

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultInterestSampleCap = 20
	DefaultActivityCap       = 20

	ActivityProgress = "progress"
	ActivityLocked   = "locked"
)

// Ledger keeps per-drop interest membership and live progress. Interest is a
// per-user set: toggling twice as the same user is a no-op overall.
type Ledger interface {
	// ToggleInterest flips u's membership and reports whether u is now interested.
	ToggleInterest(ctx context.Context, dropID string, u User) (bool, error)
	// Interest returns the member count (without the catalog base) and recent
	// entries, plus whether userID is a member.
	Interest(ctx context.Context, dropID, userID string) (Interest, error)
	// UserInterests lists the drops userID is interested in, sorted.
	UserInterests(ctx context.Context, userID string) ([]string, error)
	ApplyProgress(ctx context.Context, dropID string, progress float64) (ProgressState, error)
	// Progress returns the recorded state; ok is false if none was applied.
	Progress(ctx context.Context, dropID string) (state ProgressState, ok bool, err error)
}

// ClampProgress bounds a progress value to [0, 1].
func ClampProgress(p float64) float64 {
	if p != p || p < 0 { // NaN
		return 0
	}
	return min(p, 1)
}

type LedgerOptions struct {
	SampleCap   int
	ActivityCap int
	Now         func() time.Time
	NewID       func() string
}

func (o LedgerOptions) withDefaults() LedgerOptions {
	if o.SampleCap <= 0 {
		o.SampleCap = DefaultInterestSampleCap
	}
	if o.ActivityCap <= 0 {
		o.ActivityCap = DefaultActivityCap
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

type dropLedger struct {
	members  map[string]struct{}
	recent   []InterestEntry
	progress *ProgressState
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu    sync.Mutex
	opts  LedgerOptions
	drops map[string]*dropLedger
}

func NewMemoryLedger(opts LedgerOptions) *MemoryLedger {
	return &MemoryLedger{opts: opts.withDefaults(), drops: make(map[string]*dropLedger)}
}

func (l *MemoryLedger) get(dropID string) *dropLedger {
	dl, ok := l.drops[dropID]
	if !ok {
		dl = &dropLedger{members: make(map[string]struct{})}
		l.drops[dropID] = dl
	}
	return dl
}

func (l *MemoryLedger) ToggleInterest(_ context.Context, dropID string, u User) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dl := l.get(dropID)
	if _, ok := dl.members[u.ID]; ok {
		delete(dl.members, u.ID)
		dl.recent = withoutUser(dl.recent, u.ID)
		return false, nil
	}

	dl.members[u.ID] = struct{}{}
	entry := InterestEntry{ID: l.opts.NewID(), UserID: u.ID, Handle: u.Handle, Timestamp: l.opts.Now().UTC()}
	dl.recent = prepend(dl.recent, entry, l.opts.SampleCap)
	return true, nil
}

func (l *MemoryLedger) Interest(_ context.Context, dropID, userID string) (Interest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dl, ok := l.drops[dropID]
	if !ok {
		return Interest{DropID: dropID, Recent: []InterestEntry{}}, nil
	}
	_, member := dl.members[userID]
	return Interest{
		DropID:     dropID,
		Count:      len(dl.members),
		Interested: member,
		Recent:     append([]InterestEntry{}, dl.recent...),
	}, nil
}

func (l *MemoryLedger) UserInterests(_ context.Context, userID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []string{}
	for id, dl := range l.drops {
		if _, ok := dl.members[userID]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

// ApplyProgress records clamped progress and locks the drop once it reaches
// 1. A locked drop ignores further updates.
func (l *MemoryLedger) ApplyProgress(_ context.Context, dropID string, progress float64) (ProgressState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dl := l.get(dropID)
	if dl.progress == nil {
		dl.progress = &ProgressState{DropID: dropID, Status: DropStatusLive}
	}
	ps := dl.progress
	if ps.Status == DropStatusLocked {
		return ps.clone(), nil
	}

	ps.Progress = ClampProgress(progress)
	kind := ActivityProgress
	if ps.Progress >= 1 {
		ps.Status = DropStatusLocked
		kind = ActivityLocked
	}
	ps.Activity = prepend(ps.Activity, ActivityEntry{
		ID:        l.opts.NewID(),
		Kind:      kind,
		Progress:  ps.Progress,
		Timestamp: l.opts.Now().UTC(),
	}, l.opts.ActivityCap)
	return ps.clone(), nil
}

func (l *MemoryLedger) Progress(_ context.Context, dropID string) (ProgressState, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dl, ok := l.drops[dropID]
	if !ok || dl.progress == nil {
		return ProgressState{}, false, nil
	}
	return dl.progress.clone(), true, nil
}

func (p *ProgressState) clone() ProgressState {
	out := *p
	out.Activity = append([]ActivityEntry{}, p.Activity...)
	return out
}

// prepend returns list with v in front, truncated to limit.
func prepend[T any](list []T, v T, limit int) []T {
	out := make([]T, 0, min(len(list)+1, limit))
	out = append(out, v)
	for _, x := range list {
		if len(out) == limit {
			break
		}
		out = append(out, x)
	}
	return out
}

func withoutUser(list []InterestEntry, userID string) []InterestEntry {
	out := list[:0:0]
	for _, e := range list {
		if e.UserID != userID {
			out = append(out, e)
		}
	}
	return out
}
