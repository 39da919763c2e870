// Package scheduler provides the delayed-job mechanism driving reservation
// reclamation. Every stage transition schedules a one-shot job at a fixed
// delay; when the deadline passes, workers hand the job back to the booking
// engine, which re-validates the pair's current stage before touching any
// state. That re-validation is what makes stale jobs from a superseded
// stage harmless, so cancellation here is advisory only.
package scheduler

import (
	"context"
	"time"

	"github.com/bharath391/TickingTickets/internal/model"
)

// Job is a one-shot reclamation task for a (user, show) pair, tagged with
// the stage it was scheduled for. The tag is what lets the handler detect a
// job superseded by a later stage transition. Jobs are an internal
// mechanism; clients never observe them.
type Job struct {
	ID     string      `json:"id"`
	UserID string      `json:"user_id"`
	ShowID string      `json:"show_id"`
	Stage  model.Stage `json:"stage"`
}

// Handler is invoked once per fired job. Concurrent invocations for
// different (user, show) pairs are expected; the handler serializes per
// pair on its own.
type Handler func(ctx context.Context, job Job)

// Scheduler enqueues one-shot jobs that fire no earlier than the given
// delay after enqueue. Firing order across distinct jobs follows deadlines
// best-effort, not enqueue order.
type Scheduler interface {
	Schedule(ctx context.Context, job Job, delay time.Duration) error

	// Cancel removes a not-yet-fired job. It is best-effort: a job that
	// fires just before cancellation is tolerated, because correctness
	// lives in the handler's stage re-validation, not here.
	Cancel(ctx context.Context, jobID string) error
}
