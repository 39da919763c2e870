package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// queueKey is a sorted set of job ids scored by their fire deadline in
	// unix milliseconds; jobsKey is a hash holding each job's payload.
	queueKey = "expiryQueue"
	jobsKey  = "expiryJobs"
)

// RedisScheduler implements Scheduler on a Redis sorted set, so deadlines
// survive process restarts and multiple server instances share one queue.
// Workers poll for due members and claim each one with an atomic
// ZREM-then-HGET script: whichever worker's ZREM removes the id owns the
// job, so a job fires at most once across all processes.
type RedisScheduler struct {
	rdb          *redis.Client
	handler      Handler
	workers      int
	pollInterval time.Duration

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRedisScheduler builds a Redis-backed scheduler delivering fired jobs
// to handler. Start must be called before any job can fire.
func NewRedisScheduler(rdb *redis.Client, handler Handler, workers int, pollInterval time.Duration) *RedisScheduler {
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &RedisScheduler{
		rdb:          rdb,
		handler:      handler,
		workers:      workers,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

// scheduleScript stores the payload and enqueues the deadline in one step,
// so a crash between the two writes cannot leave a claimable id without a
// payload.
var scheduleScript = redis.NewScript(`
    redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
    redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
    return 1
`)

// claimScript pops at most one due job. The ZREM result is the ownership
// test: concurrent workers running this script for the same id see exactly
// one success.
var claimScript = redis.NewScript(`
    local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
    if #due == 0 then
        return false
    end
    local id = due[1]
    if redis.call('ZREM', KEYS[1], id) == 0 then
        return false
    end
    local payload = redis.call('HGET', KEYS[2], id)
    redis.call('HDEL', KEYS[2], id)
    return payload
`)

var cancelScript = redis.NewScript(`
    redis.call('ZREM', KEYS[1], ARGV[1])
    redis.call('HDEL', KEYS[2], ARGV[1])
    return 1
`)

func (s *RedisScheduler) Schedule(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	deadline := time.Now().Add(delay).UnixMilli()
	if err := scheduleScript.Run(ctx, s.rdb,
		[]string{queueKey, jobsKey},
		job.ID, payload, deadline).Err(); err != nil {
		return fmt.Errorf("schedule job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisScheduler) Cancel(ctx context.Context, jobID string) error {
	if err := cancelScript.Run(ctx, s.rdb, []string{queueKey, jobsKey}, jobID).Err(); err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}

// Start launches the polling worker pool. The provided context is passed
// through to handler invocations and also stops the workers when
// cancelled.
func (s *RedisScheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.work(ctx)
		}
	})
}

// Stop halts the workers and waits for in-flight handler invocations.
func (s *RedisScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *RedisScheduler) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		job, ok := s.claim(ctx)
		if !ok {
			select {
			case <-time.After(s.pollInterval):
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		s.handler(ctx, job)
	}
}

func (s *RedisScheduler) claim(ctx context.Context) (Job, bool) {
	res, err := claimScript.Run(ctx, s.rdb, []string{queueKey, jobsKey}, time.Now().UnixMilli()).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			log.Printf("scheduler: claim failed: %v", err)
		}
		return Job{}, false
	}
	payload, ok := res.(string)
	if !ok || payload == "" {
		return Job{}, false
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Printf("scheduler: drop undecodable job: %v", err)
		return Job{}, false
	}
	return job, true
}
