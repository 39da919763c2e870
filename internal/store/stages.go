package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bharath391/TickingTickets/internal/model"
)

// StageRegistry tracks which (user, show) pairs are in the seat-hold window
// (Stage 1) versus the payment window (Stage 2). Membership is a plain set
// predicate: adding an existing member and removing a missing one are both
// no-ops. The registry itself allows a pair in both sets at once; the
// booking engine is the one enforcing exclusivity by serializing stage
// transitions per pair.
type StageRegistry interface {
	Add(ctx context.Context, stage model.Stage, userID, showID string) error
	In(ctx context.Context, stage model.Stage, userID, showID string) (bool, error)
	Remove(ctx context.Context, stage model.Stage, userID, showID string) error

	// Move transfers the pair from one stage to the other in a single step
	// and reports whether the pair was a member of the source stage. Two
	// concurrent movers of the same pair see exactly one true.
	Move(ctx context.Context, from, to model.Stage, userID, showID string) (bool, error)

	// Take removes the pair from a stage and reports whether it was a
	// member. Like Move, the removal doubles as an ownership test.
	Take(ctx context.Context, stage model.Stage, userID, showID string) (bool, error)
}

func stageMember(userID, showID string) string {
	return userID + ":" + showID
}

// RedisStages keeps one set per stage (stage1Lock, stage2Lock) whose members
// are "userID:showID" strings.
type RedisStages struct {
	rdb *redis.Client
}

// NewRedisStages returns a RedisStages bound to the provided client.
func NewRedisStages(rdb *redis.Client) *RedisStages {
	return &RedisStages{rdb: rdb}
}

func (s *RedisStages) Add(ctx context.Context, stage model.Stage, userID, showID string) error {
	if err := s.rdb.SAdd(ctx, stage.String(), stageMember(userID, showID)).Err(); err != nil {
		return fmt.Errorf("%w: add %s member %s/%s: %v", ErrUnavailable, stage, userID, showID, err)
	}
	return nil
}

func (s *RedisStages) In(ctx context.Context, stage model.Stage, userID, showID string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, stage.String(), stageMember(userID, showID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check %s member %s/%s: %v", ErrUnavailable, stage, userID, showID, err)
	}
	return ok, nil
}

func (s *RedisStages) Remove(ctx context.Context, stage model.Stage, userID, showID string) error {
	if err := s.rdb.SRem(ctx, stage.String(), stageMember(userID, showID)).Err(); err != nil {
		return fmt.Errorf("%w: remove %s member %s/%s: %v", ErrUnavailable, stage, userID, showID, err)
	}
	return nil
}

// Move is a single SMOVE, so the membership check and transfer cannot be
// interleaved with another client's.
func (s *RedisStages) Move(ctx context.Context, from, to model.Stage, userID, showID string) (bool, error) {
	moved, err := s.rdb.SMove(ctx, from.String(), to.String(), stageMember(userID, showID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: move %s member %s/%s to %s: %v", ErrUnavailable, from, userID, showID, to, err)
	}
	return moved, nil
}

func (s *RedisStages) Take(ctx context.Context, stage model.Stage, userID, showID string) (bool, error) {
	n, err := s.rdb.SRem(ctx, stage.String(), stageMember(userID, showID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: take %s member %s/%s: %v", ErrUnavailable, stage, userID, showID, err)
	}
	return n > 0, nil
}
