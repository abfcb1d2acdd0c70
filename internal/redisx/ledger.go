package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS: members, recent, entries, user interests.
// ARGV: user id, entry json, sample cap, drop id.
var toggleScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
  redis.call('LREM', KEYS[2], 0, ARGV[1])
  redis.call('LPUSH', KEYS[2], ARGV[1])
  redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[3]) - 1)
  redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
  redis.call('SADD', KEYS[4], ARGV[4])
  return 1
end
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('LREM', KEYS[2], 0, ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('SREM', KEYS[4], ARGV[4])
return 0
`)

// KEYS: progress, activity. ARGV: progress, status, activity json, activity cap.
var progressScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') == 'locked' then
  return 0
end
redis.call('HSET', KEYS[1], 'progress', ARGV[1], 'status', ARGV[2])
redis.call('LPUSH', KEYS[2], ARGV[3])
redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[4]) - 1)
return 1
`)

// InterestLedger is a drops.Ledger shared by every API instance. Each
// mutation runs as one Lua script, so concurrent toggles cannot interleave.
type InterestLedger struct {
	rdb  *redis.Client
	opts drops.LedgerOptions
}

func NewInterestLedger(rdb *redis.Client, opts drops.LedgerOptions) *InterestLedger {
	if opts.SampleCap <= 0 {
		opts.SampleCap = drops.DefaultInterestSampleCap
	}
	if opts.ActivityCap <= 0 {
		opts.ActivityCap = drops.DefaultActivityCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &InterestLedger{rdb: rdb, opts: opts}
}

func (l *InterestLedger) ToggleInterest(ctx context.Context, dropID string, u drops.User) (bool, error) {
	entry, err := json.Marshal(drops.InterestEntry{
		ID:        l.opts.NewID(),
		UserID:    u.ID,
		Handle:    u.Handle,
		Timestamp: l.opts.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	keys := []string{
		fmt.Sprintf(KeyInterestMembers, dropID),
		fmt.Sprintf(KeyInterestRecent, dropID),
		fmt.Sprintf(KeyInterestEntries, dropID),
		fmt.Sprintf(KeyUserInterests, u.ID),
	}
	added, err := toggleScript.Run(ctx, l.rdb, keys, u.ID, entry, l.opts.SampleCap, dropID).Int()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (l *InterestLedger) Interest(ctx context.Context, dropID, userID string) (drops.Interest, error) {
	var (
		count  *redis.IntCmd
		member *redis.BoolCmd
		recent *redis.StringSliceCmd
	)
	_, err := l.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		count = p.SCard(ctx, fmt.Sprintf(KeyInterestMembers, dropID))
		member = p.SIsMember(ctx, fmt.Sprintf(KeyInterestMembers, dropID), userID)
		recent = p.LRange(ctx, fmt.Sprintf(KeyInterestRecent, dropID), 0, int64(l.opts.SampleCap)-1)
		return nil
	})
	if err != nil {
		return drops.Interest{}, err
	}

	out := drops.Interest{
		DropID:     dropID,
		Count:      int(count.Val()),
		Interested: member.Val(),
		Recent:     []drops.InterestEntry{},
	}
	ids := recent.Val()
	if len(ids) == 0 {
		return out, nil
	}
	raw, err := l.rdb.HMGet(ctx, fmt.Sprintf(KeyInterestEntries, dropID), ids...).Result()
	if err != nil {
		return drops.Interest{}, err
	}
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e drops.InterestEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return drops.Interest{}, fmt.Errorf("decode interest entry: %w", err)
		}
		out.Recent = append(out.Recent, e)
	}
	return out, nil
}

func (l *InterestLedger) UserInterests(ctx context.Context, userID string) ([]string, error) {
	ids, err := l.rdb.SMembers(ctx, fmt.Sprintf(KeyUserInterests, userID)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (l *InterestLedger) ApplyProgress(ctx context.Context, dropID string, progress float64) (drops.ProgressState, error) {
	p := drops.ClampProgress(progress)
	status, kind := drops.DropStatusLive, drops.ActivityProgress
	if p >= 1 {
		status, kind = drops.DropStatusLocked, drops.ActivityLocked
	}
	act, err := json.Marshal(drops.ActivityEntry{
		ID:        l.opts.NewID(),
		Kind:      kind,
		Progress:  p,
		Timestamp: l.opts.Now().UTC(),
	})
	if err != nil {
		return drops.ProgressState{}, err
	}

	keys := []string{fmt.Sprintf(KeyProgress, dropID), fmt.Sprintf(KeyActivity, dropID)}
	args := []any{strconv.FormatFloat(p, 'f', -1, 64), string(status), act, l.opts.ActivityCap}
	if err := progressScript.Run(ctx, l.rdb, keys, args...).Err(); err != nil {
		return drops.ProgressState{}, err
	}

	ps, _, err := l.Progress(ctx, dropID)
	return ps, err
}

func (l *InterestLedger) Progress(ctx context.Context, dropID string) (drops.ProgressState, bool, error) {
	h, err := l.rdb.HGetAll(ctx, fmt.Sprintf(KeyProgress, dropID)).Result()
	if err != nil {
		return drops.ProgressState{}, false, err
	}
	if len(h) == 0 {
		return drops.ProgressState{}, false, nil
	}
	p, err := strconv.ParseFloat(h["progress"], 64)
	if err != nil {
		return drops.ProgressState{}, false, fmt.Errorf("parse progress of %s: %w", dropID, err)
	}

	raw, err := l.rdb.LRange(ctx, fmt.Sprintf(KeyActivity, dropID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return drops.ProgressState{}, false, err
	}
	ps := drops.ProgressState{
		DropID:   dropID,
		Progress: p,
		Status:   drops.DropStatus(h["status"]),
		Activity: make([]drops.ActivityEntry, 0, len(raw)),
	}
	for _, s := range raw {
		var a drops.ActivityEntry
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return drops.ProgressState{}, false, fmt.Errorf("decode activity: %w", err)
		}
		ps.Activity = append(ps.Activity, a)
	}
	return ps, true, nil
}
