package redis

import (
	"context"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-club-ticketing/internal/apperr"
)

const lockKeyPrefix = "lock:reserva:"

var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Pair identifies one unit of inventory.
type Pair struct {
	EventID  string
	SectorID string
}

// SortedPairs dedupes pairs and orders them so that every caller acquires
// locks in the same order.
func SortedPairs(pairs []Pair) []Pair {
	seen := make(map[Pair]struct{}, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].SectorID < out[j].SectorID
	})
	return out
}

// SectorLock is a short-lived mutex per (event, sector) held across a
// capacity check and the write that depends on it.
type SectorLock struct {
	client  redis.Cmdable
	enabled bool
	ttl     time.Duration
	wait    time.Duration
	retry   time.Duration
}

func NewSectorLock(client redis.Cmdable, enabled bool, ttl, wait time.Duration) *SectorLock {
	return &SectorLock{client: client, enabled: enabled, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

// Acquire locks every pair or none. The returned func releases what was
// taken; it is safe to call when Acquire failed.
func (l *SectorLock) Acquire(ctx context.Context, pairs ...Pair) (func(), error) {
	if !l.enabled {
		return func() {}, nil
	}

	token := uuid.NewString()
	var held []string
	unlock := func() {
		// the caller's ctx may already be done
		bg, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, key := range held {
			unlockScript.Run(bg, l.client, []string{key}, token)
		}
	}

	deadline := time.Now().Add(l.wait)
	for _, p := range SortedPairs(pairs) {
		key := lockKeyPrefix + p.EventID + ":" + p.SectorID
		for {
			ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
			if err != nil {
				unlock()
				return func() {}, apperr.Unavailable("hold store", err)
			}
			if ok {
				held = append(held, key)
				break
			}
			if time.Now().After(deadline) {
				unlock()
				return func() {}, apperr.Conflict("sector %s of event %s is busy, try again", p.SectorID, p.EventID)
			}
			select {
			case <-ctx.Done():
				unlock()
				return func() {}, ctx.Err()
			case <-time.After(l.retry):
			}
		}
	}
	return unlock, nil
}
