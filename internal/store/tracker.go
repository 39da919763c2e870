package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bharath391/TickingTickets/internal/model"
)

// ReservationTracker maps a (user, show) pair to the seat ids that user
// currently holds. An entry is overwritten, never merged, by a new lock
// attempt. The TTL on each entry is a safety backstop only: the expiration
// scheduler is the authoritative reclamation path, and callers must keep
// the TTL strictly longer than the payment window so the two can never
// disagree about who runs first.
type ReservationTracker interface {
	Put(ctx context.Context, userID, showID string, seatIDs []int, ttl time.Duration) error
	// Get returns the held seat ids and whether an entry exists.
	Get(ctx context.Context, userID, showID string) ([]int, bool, error)
	// Clear deletes the entry; clearing an absent entry is a no-op.
	Clear(ctx context.Context, userID, showID string) error
}

func userSeatsKey(userID, showID string) string {
	return "userSeats:" + userID + ":" + showID
}

// RedisTracker stores each mapping as a JSON-encoded Reservation under
// userSeats:{userID}:{showID}. Keeping the full record, not just the seat
// ids, makes the key self-describing when inspected over redis-cli.
type RedisTracker struct {
	rdb *redis.Client
}

// NewRedisTracker returns a RedisTracker bound to the provided client.
func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{rdb: rdb}
}

func (t *RedisTracker) Put(ctx context.Context, userID, showID string, seatIDs []int, ttl time.Duration) error {
	now := time.Now().UTC()
	body, err := json.Marshal(model.Reservation{
		UserID:    userID,
		ShowID:    showID,
		SeatIDs:   seatIDs,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("encode reservation for %s/%s: %w", userID, showID, err)
	}
	if err := t.rdb.Set(ctx, userSeatsKey(userID, showID), body, ttl).Err(); err != nil {
		return fmt.Errorf("%w: store seats for %s/%s: %v", ErrUnavailable, userID, showID, err)
	}
	return nil
}

func (t *RedisTracker) Get(ctx context.Context, userID, showID string) ([]int, bool, error) {
	raw, err := t.rdb.Get(ctx, userSeatsKey(userID, showID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: read seats for %s/%s: %v", ErrUnavailable, userID, showID, err)
	}
	var r model.Reservation
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false, fmt.Errorf("decode reservation for %s/%s: %w", userID, showID, err)
	}
	return r.SeatIDs, true, nil
}

func (t *RedisTracker) Clear(ctx context.Context, userID, showID string) error {
	if err := t.rdb.Del(ctx, userSeatsKey(userID, showID)).Err(); err != nil {
		return fmt.Errorf("%w: clear seats for %s/%s: %v", ErrUnavailable, userID, showID, err)
	}
	return nil
}
