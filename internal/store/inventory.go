package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Inventory tracks, per show, which seats are available and which are
// currently locked. Sold seats belong to neither set; the union of the two
// sets plus sold seats always equals the show's total seat count, and the
// sets are always disjoint.
type Inventory interface {
	// InitShow seeds the available set with seat ids 1..totalSeats. The
	// seeding happens at most once per show; repeated calls are no-ops and
	// report false. Booking must not open before this has run.
	InitShow(ctx context.Context, showID string, totalSeats int) (bool, error)

	// TryLock atomically checks that every seat in seatIDs is available
	// and, only if all are, moves all of them into the locked set. On any
	// unavailable seat it reports false with no partial mutation. This
	// all-or-nothing step is the property that prevents double booking.
	TryLock(ctx context.Context, showID string, seatIDs []int) (bool, error)

	// Release moves seats from locked back to available. Releasing a seat
	// that is not locked is a no-op, not an error.
	Release(ctx context.Context, showID string, seatIDs []int) error

	// MarkSold removes seats from the locked set permanently; they never
	// return to the available pool.
	MarkSold(ctx context.Context, showID string, seatIDs []int) error

	// SeatSets returns the current available and locked seat ids, sorted.
	SeatSets(ctx context.Context, showID string) (available, locked []int, err error)
}

// Redis key layout:
//   seats:{showID}       available seat ids
//   lockedSeats:{showID} currently locked seat ids
//   seatsInit:{showID}   guard flag so seeding runs exactly once

func availableKey(showID string) string { return "seats:" + showID }
func lockedKey(showID string) string    { return "lockedSeats:" + showID }
func initKey(showID string) string      { return "seatsInit:" + showID }

// RedisInventory implements Inventory on a Redis server. All multi-seat
// mutations run as server-side Lua scripts so that concurrent lockers
// targeting overlapping seat sets can never both pass the availability
// check before either moves a seat.
type RedisInventory struct {
	rdb *redis.Client
}

// NewRedisInventory returns a RedisInventory bound to the provided client.
func NewRedisInventory(rdb *redis.Client) *RedisInventory {
	return &RedisInventory{rdb: rdb}
}

// initScript seeds the available set only when the guard flag was not set
// before. Doing both in one script keeps a crashed half-seeded show from
// being observable.
var initScript = redis.NewScript(`
    if redis.call('SETNX', KEYS[1], '1') == 0 then
        return 0
    end
    for i = 1, tonumber(ARGV[1]) do
        redis.call('SADD', KEYS[2], tostring(i))
    end
    return 1
`)

// tryLockScript checks every requested seat for membership in the available
// set and only then moves each one into the locked set. Redis executes the
// whole script as a single indivisible step, which is exactly the atomicity
// TryLock promises.
var tryLockScript = redis.NewScript(`
    for i = 1, #ARGV do
        if redis.call('SISMEMBER', KEYS[1], ARGV[i]) == 0 then
            return 0
        end
    end
    for i = 1, #ARGV do
        redis.call('SMOVE', KEYS[1], KEYS[2], ARGV[i])
    end
    return 1
`)

func (r *RedisInventory) InitShow(ctx context.Context, showID string, totalSeats int) (bool, error) {
	if totalSeats <= 0 {
		return false, fmt.Errorf("invalid seat count %d for show %s", totalSeats, showID)
	}
	n, err := initScript.Run(ctx, r.rdb, []string{initKey(showID), availableKey(showID)}, totalSeats).Int()
	if err != nil {
		return false, fmt.Errorf("%w: init show %s: %v", ErrUnavailable, showID, err)
	}
	return n == 1, nil
}

func (r *RedisInventory) TryLock(ctx context.Context, showID string, seatIDs []int) (bool, error) {
	if len(seatIDs) == 0 {
		return false, nil
	}
	n, err := tryLockScript.Run(ctx, r.rdb,
		[]string{availableKey(showID), lockedKey(showID)},
		seatArgs(seatIDs)...).Int()
	if err != nil {
		return false, fmt.Errorf("%w: try lock show %s: %v", ErrUnavailable, showID, err)
	}
	return n == 1, nil
}

func (r *RedisInventory) Release(ctx context.Context, showID string, seatIDs []int) error {
	// SMOVE is a no-op when the member is absent from the source set, so a
	// per-seat pipeline is already idempotent; no script needed.
	pipe := r.rdb.Pipeline()
	for _, id := range seatIDs {
		pipe.SMove(ctx, lockedKey(showID), availableKey(showID), strconv.Itoa(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: release seats for show %s: %v", ErrUnavailable, showID, err)
	}
	return nil
}

func (r *RedisInventory) MarkSold(ctx context.Context, showID string, seatIDs []int) error {
	if err := r.rdb.SRem(ctx, lockedKey(showID), seatArgs(seatIDs)...).Err(); err != nil {
		return fmt.Errorf("%w: mark sold for show %s: %v", ErrUnavailable, showID, err)
	}
	return nil
}

func (r *RedisInventory) SeatSets(ctx context.Context, showID string) ([]int, []int, error) {
	avail, err := r.members(ctx, availableKey(showID))
	if err != nil {
		return nil, nil, err
	}
	locked, err := r.members(ctx, lockedKey(showID))
	if err != nil {
		return nil, nil, err
	}
	return avail, locked, nil
}

func (r *RedisInventory) members(ctx context.Context, key string) ([]int, error) {
	raw, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, key, err)
	}
	ids := make([]int, 0, len(raw))
	for _, s := range raw {
		if n, convErr := strconv.Atoi(s); convErr == nil {
			ids = append(ids, n)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// seatArgs converts seat ids to the string members stored in the sets.
func seatArgs(seatIDs []int) []interface{} {
	args := make([]interface{}, len(seatIDs))
	for i, id := range seatIDs {
		args[i] = strconv.Itoa(id)
	}
	return args
}
