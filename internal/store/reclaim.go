package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bharath391/TickingTickets/internal/model"
)

// Reclaimer undoes one expired stage claim: it removes the pair's stage
// membership, moves the held seats back to the available pool and deletes
// the reservation record. The whole sequence must look like a single step
// to every other client, because the stage check is what stops a stale
// expiry from releasing seats whose owner has already moved on. A pair
// that is not in the given stage is left completely untouched.
type Reclaimer interface {
	Reclaim(ctx context.Context, stage model.Stage, userID, showID string) (seats []int, reclaimed bool, err error)
}

// reclaimScript runs the check-remove-release-delete sequence server-side.
// The SISMEMBER guard and everything after it execute as one script, so no
// stage transition from another instance can slip in between.
var reclaimScript = redis.NewScript(`
    local member = ARGV[1]
    if redis.call('SISMEMBER', KEYS[1], member) == 0 then
        return false
    end
    redis.call('SREM', KEYS[1], member)
    local raw = redis.call('GET', KEYS[2])
    if not raw then
        return ''
    end
    local r = cjson.decode(raw)
    for _, id in ipairs(r['seat_ids']) do
        redis.call('SMOVE', KEYS[3], KEYS[4], tostring(id))
    end
    redis.call('DEL', KEYS[2])
    return raw
`)

// RedisReclaimer implements Reclaimer with a Lua script spanning the stage
// set, the reservation record and both seat sets. Safe with any number of
// server instances claiming expiry jobs from the shared queue.
type RedisReclaimer struct {
	rdb *redis.Client
}

// NewRedisReclaimer returns a RedisReclaimer bound to the provided client.
func NewRedisReclaimer(rdb *redis.Client) *RedisReclaimer {
	return &RedisReclaimer{rdb: rdb}
}

func (r *RedisReclaimer) Reclaim(ctx context.Context, stage model.Stage, userID, showID string) ([]int, bool, error) {
	res, err := reclaimScript.Run(ctx, r.rdb,
		[]string{stage.String(), userSeatsKey(userID, showID), lockedKey(showID), availableKey(showID)},
		stageMember(userID, showID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Lua false: the pair was not in the stage.
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: reclaim %s for %s/%s: %v", ErrUnavailable, stage, userID, showID, err)
	}
	raw, _ := res.(string)
	if raw == "" {
		return nil, true, nil
	}
	var rec model.Reservation
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, true, fmt.Errorf("decode reclaimed reservation for %s/%s: %w", userID, showID, err)
	}
	return rec.SeatIDs, true, nil
}

// MemoryReclaimer implements Reclaimer over the in-process stores. The
// single-step guarantee holds because the in-process stores only ever serve
// one process, whose booking engine serializes all operations on a pair.
type MemoryReclaimer struct {
	inv     *MemoryInventory
	tracker *MemoryTracker
	stages  *MemoryStages
}

// NewMemoryReclaimer returns a MemoryReclaimer over the given stores.
func NewMemoryReclaimer(inv *MemoryInventory, tracker *MemoryTracker, stages *MemoryStages) *MemoryReclaimer {
	return &MemoryReclaimer{inv: inv, tracker: tracker, stages: stages}
}

func (m *MemoryReclaimer) Reclaim(ctx context.Context, stage model.Stage, userID, showID string) ([]int, bool, error) {
	took, err := m.stages.Take(ctx, stage, userID, showID)
	if err != nil || !took {
		return nil, false, err
	}
	seats, held, err := m.tracker.Get(ctx, userID, showID)
	if err != nil {
		return nil, true, err
	}
	if held {
		if err := m.inv.Release(ctx, showID, seats); err != nil {
			return nil, true, err
		}
		if err := m.tracker.Clear(ctx, userID, showID); err != nil {
			return seats, true, err
		}
	}
	return seats, true, nil
}
