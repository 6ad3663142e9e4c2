package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-club-ticketing/internal/apperr"
	"ms-club-ticketing/internal/logger"
)

const holdKeyPrefix = "reserva:"

// Incrementing and re-arming the expiry happen in one script so that a
// concurrent hold can never observe a counter without a TTL.
var holdScript = redis.NewScript(`
local n = redis.call('INCRBY', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return n
`)

// DECRBY keeps the remaining TTL. A release that would reach zero or below
// drops the key instead.
var releaseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local q = tonumber(ARGV[1])
if cur <= q then
  redis.call('DEL', KEYS[1])
  return 0
end
return redis.call('DECRBY', KEYS[1], q)
`)

// HoldLedger keeps one expiring counter per (event, sector) of seats claimed
// by buyers who have not paid yet.
type HoldLedger struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *logger.Logger
}

func NewHoldLedger(client redis.Cmdable, ttl time.Duration, log *logger.Logger) *HoldLedger {
	return &HoldLedger{client: client, ttl: ttl, log: log}
}

func HoldKey(eventID, sectorID string) string {
	return holdKeyPrefix + eventID + ":" + sectorID
}

// ParseHoldKey is the inverse of HoldKey.
func ParseHoldKey(key string) (eventID, sectorID string, ok bool) {
	rest, found := strings.CutPrefix(key, holdKeyPrefix)
	if !found {
		return "", "", false
	}
	eventID, sectorID, ok = strings.Cut(rest, ":")
	if !ok || eventID == "" || sectorID == "" {
		return "", "", false
	}
	return eventID, sectorID, true
}

func (h *HoldLedger) TTL() time.Duration {
	return h.ttl
}

// Hold adds quantity to the live count and resets the expiry window. It
// does not look at capacity.
func (h *HoldLedger) Hold(ctx context.Context, eventID, sectorID string, quantity int) (int, error) {
	n, err := holdScript.Run(ctx, h.client, []string{HoldKey(eventID, sectorID)}, quantity, h.ttl.Milliseconds()).Int()
	if err != nil {
		h.log.Error("HOLD", fmt.Sprintf("hold %s/%s qty=%d failed: %v", eventID, sectorID, quantity, err))
		return 0, apperr.Unavailable("hold store", err)
	}
	h.log.LogHold("HOLD", eventID, sectorID, fmt.Sprintf("+%d reserved=%d", quantity, n))
	return n, nil
}

// Release subtracts quantity, flooring at zero.
func (h *HoldLedger) Release(ctx context.Context, eventID, sectorID string, quantity int) (int, error) {
	n, err := releaseScript.Run(ctx, h.client, []string{HoldKey(eventID, sectorID)}, quantity).Int()
	if err != nil {
		h.log.Error("HOLD", fmt.Sprintf("release %s/%s qty=%d failed: %v", eventID, sectorID, quantity, err))
		return 0, apperr.Unavailable("hold store", err)
	}
	h.log.LogHold("RELEASE", eventID, sectorID, fmt.Sprintf("-%d reserved=%d", quantity, n))
	return n, nil
}

// Count is the live hold for one pair; a missing key counts as zero.
func (h *HoldLedger) Count(ctx context.Context, eventID, sectorID string) (int, error) {
	val, err := h.client.Get(ctx, HoldKey(eventID, sectorID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Unavailable("hold store", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("hold counter %s is not an integer: %w", HoldKey(eventID, sectorID), err)
	}
	return n, nil
}

// Peek returns the live hold of every sector of an event that has one.
func (h *HoldLedger) Peek(ctx context.Context, eventID string) (map[string]int, error) {
	pattern := holdKeyPrefix + escapeGlob(eventID) + ":*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := h.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, apperr.Unavailable("hold store", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make(map[string]int, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := h.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Unavailable("hold store", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		evt, sectorID, ok := ParseHoldKey(keys[i])
		if !ok || evt != eventID {
			continue
		}
		out[sectorID] = n
	}
	return out, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
