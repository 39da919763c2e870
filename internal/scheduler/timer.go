package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// TimerScheduler is the in-process Scheduler: a min-heap ordered by
// deadline, one timer goroutine popping due entries, and a small worker
// pool running the handler. It backs the unit tests and the degraded
// single-node mode when Redis is unreachable.
type TimerScheduler struct {
	handler Handler
	workers int

	mu   sync.Mutex
	pq   jobHeap
	byID map[string]*timerEntry

	wake   chan struct{}
	fireCh chan Job
	stopCh chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

type timerEntry struct {
	job       Job
	due       time.Time
	index     int
	cancelled bool
}

// NewTimerScheduler builds a scheduler delivering fired jobs to handler
// from the given number of workers. Start must be called before any job
// can fire.
func NewTimerScheduler(handler Handler, workers int) *TimerScheduler {
	if workers < 1 {
		workers = 1
	}
	return &TimerScheduler{
		handler: handler,
		workers: workers,
		byID:    make(map[string]*timerEntry),
		wake:    make(chan struct{}, 1),
		fireCh:  make(chan Job),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the timer loop and worker pool. The provided context is
// passed through to handler invocations.
func (s *TimerScheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				for job := range s.fireCh {
					s.handler(ctx, job)
				}
			}()
		}
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop halts the timer loop and waits for in-flight handler invocations to
// return. Pending jobs that have not fired are dropped.
func (s *TimerScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *TimerScheduler) Schedule(_ context.Context, job Job, delay time.Duration) error {
	e := &timerEntry{job: job, due: time.Now().Add(delay)}
	s.mu.Lock()
	heap.Push(&s.pq, e)
	s.byID[job.ID] = e
	s.mu.Unlock()
	s.poke()
	return nil
}

func (s *TimerScheduler) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[jobID]; ok {
		e.cancelled = true
		delete(s.byID, jobID)
	}
	return nil
}

func (s *TimerScheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *TimerScheduler) loop() {
	defer s.wg.Done()
	defer close(s.fireCh)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		due, wait := s.collectDue()
		for _, job := range due {
			select {
			case s.fireCh <- job:
			case <-s.stopCh:
				return
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.stopCh:
			return
		}
	}
}

// collectDue pops every entry whose deadline has passed and reports how
// long the loop may sleep before the next one is due.
func (s *TimerScheduler) collectDue() ([]Job, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var due []Job
	for s.pq.Len() > 0 {
		e := s.pq[0]
		if e.cancelled {
			heap.Pop(&s.pq)
			continue
		}
		if e.due.After(now) {
			return due, e.due.Sub(now)
		}
		heap.Pop(&s.pq)
		delete(s.byID, e.job.ID)
		due = append(due, e.job)
	}
	return due, time.Hour
}

// jobHeap is a min-heap of entries ordered by due time.
type jobHeap []*timerEntry

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }

func (h *jobHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
