package booking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bharath391/TickingTickets/internal/config"
	"github.com/bharath391/TickingTickets/internal/model"
	"github.com/bharath391/TickingTickets/internal/scheduler"
	"github.com/bharath391/TickingTickets/internal/store"
)

// ConfirmedPublisher receives the durable-side notification once a booking
// is confirmed. Publishing is best-effort from the engine's point of view:
// a failed publish is logged, never unwound, because the fast store is
// already consistent by then. Exactly-once delivery across this boundary
// is a known gap owned by the downstream consumer.
type ConfirmedPublisher interface {
	PublishConfirmed(ctx context.Context, userID, showID, paymentID string, seatIDs []int, confirmedAt time.Time) error
}

// Engine coordinates the inventory, tracker, stage registry, reclaimer and
// expiration scheduler. The collaborators are injected as interfaces so
// tests run against the in-process stores and production against Redis
// without the engine changing.
type Engine struct {
	inv     store.Inventory
	tracker store.ReservationTracker
	stages  store.StageRegistry
	reclaim store.Reclaimer
	sched   scheduler.Scheduler
	events  ConfirmedPublisher // may be nil
	cfg     config.BookingConfig

	keys keyedMutex

	// jobMu guards the map of each pair's most recently scheduled job id,
	// used for best-effort cancellation on stage transitions.
	jobMu sync.Mutex
	jobs  map[string]string
}

// NewEngine builds an Engine over the given stores. The scheduler is
// attached separately via UseScheduler because its handler is the engine's
// own reclamation path. events may be nil to disable confirmation events.
func NewEngine(inv store.Inventory, tracker store.ReservationTracker, stages store.StageRegistry, reclaim store.Reclaimer, events ConfirmedPublisher, cfg config.BookingConfig) *Engine {
	return &Engine{
		inv:     inv,
		tracker: tracker,
		stages:  stages,
		reclaim: reclaim,
		events:  events,
		cfg:     cfg,
		jobs:    make(map[string]string),
	}
}

// UseScheduler attaches the expiration scheduler. It must be called before
// the first LockSeats; the split exists because the scheduler's handler is
// the engine's HandleExpiration.
func (e *Engine) UseScheduler(s scheduler.Scheduler) { e.sched = s }

// opCtx bounds a single store round trip. Nothing in the engine blocks
// indefinitely; a store that stops answering surfaces as a retryable
// transient result.
func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

func transient(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// LockSeats is Stage 1: atomically claim 1..MaxSeats seats for 30 seconds.
// An existing reservation for the same (user, show) pair is overwritten,
// not merged; a failed attempt leaves it exactly as it was.
func (e *Engine) LockSeats(ctx context.Context, userID, showID string, seatIDs []int) (Result, error) {
	if userID == "" || showID == "" {
		return failure("user id and show id are required"), ErrInvalidInput
	}
	seats := dedupe(seatIDs)
	if len(seats) == 0 || len(seats) > e.cfg.MaxSeats {
		return failure(fmt.Sprintf("select between 1 and %d seats", e.cfg.MaxSeats)), ErrInvalidInput
	}
	for _, id := range seats {
		if id <= 0 {
			return failure("seat ids must be positive"), ErrInvalidInput
		}
	}

	defer e.keys.lock(pairKey(userID, showID)).Unlock()

	// A pair's previous reservation is overwritten, never merged, but it
	// must survive a failed overwrite intact. Seats the new claim shares
	// with the old one are already held and never pass through the pool;
	// only the delta is acquired, and the leftovers are released after the
	// new claim is fully recorded.
	opCtx, cancel := e.opCtx(ctx)
	oldSeats, held, err := e.tracker.Get(opCtx, userID, showID)
	cancel()
	if err != nil {
		return failure("could not reach the seat store, try again"), transient(err)
	}
	toAcquire, toRelease := seats, []int(nil)
	if held {
		toAcquire = diff(seats, oldSeats)
		toRelease = diff(oldSeats, seats)
	}

	if len(toAcquire) > 0 {
		opCtx, cancel = e.opCtx(ctx)
		ok, err := e.inv.TryLock(opCtx, showID, toAcquire)
		cancel()
		if err != nil {
			return failure("could not reach the seat store, try again"), transient(err)
		}
		if !ok {
			// The previous reservation, if any, stands untouched.
			return failure("requested seats are no longer available"), ErrSeatUnavailable
		}
	}

	expiresAt := time.Now().Add(e.cfg.HoldWindow)

	opCtx, cancel = e.opCtx(ctx)
	err = e.tracker.Put(opCtx, userID, showID, seats, e.cfg.TrackerTTL)
	cancel()
	if err != nil {
		e.rollbackSeats(ctx, showID, toAcquire)
		return failure("could not record the reservation, try again"), transient(err)
	}

	// A fresh lock restarts the flow at Stage 1 even when the previous
	// reservation had already reached Stage 2.
	opCtx, cancel = e.opCtx(ctx)
	err = e.stages.Remove(opCtx, model.Stage2, userID, showID)
	cancel()
	if err == nil {
		opCtx, cancel = e.opCtx(ctx)
		err = e.stages.Add(opCtx, model.Stage1, userID, showID)
		cancel()
	}
	if err != nil {
		e.rollbackSeats(ctx, showID, seats)
		e.rollbackSeats(ctx, showID, toRelease)
		e.clearQuiet(ctx, userID, showID)
		e.cancelExpiry(ctx, userID, showID)
		return failure("could not record the reservation, try again"), transient(err)
	}

	if len(toRelease) > 0 {
		opCtx, cancel = e.opCtx(ctx)
		if err := e.inv.Release(opCtx, showID, toRelease); err != nil {
			log.Printf("booking: release replaced seats for %s/%s failed: %v", userID, showID, err)
		}
		cancel()
	}

	e.scheduleExpiry(ctx, userID, showID, model.Stage1, e.cfg.HoldWindow)
	return success("seats locked, start payment before the hold expires", expiresAt), nil
}

// InitiatePayment is Stage 2: exchange the 30-second hold for the 5-minute
// payment window. It requires the pair to still be in Stage 1; a pair whose
// hold already expired gets the same answer as one that never locked.
func (e *Engine) InitiatePayment(ctx context.Context, userID, showID string) (Result, error) {
	if userID == "" || showID == "" {
		return failure("user id and show id are required"), ErrInvalidInput
	}

	defer e.keys.lock(pairKey(userID, showID)).Unlock()

	// The single-step move is both the stage check and the transition:
	// when it races an expiry reclaiming the hold, exactly one of the two
	// observes the Stage 1 membership, and a failed move leaves the pair
	// in whatever stage it was in.
	opCtx, cancel := e.opCtx(ctx)
	moved, err := e.stages.Move(opCtx, model.Stage1, model.Stage2, userID, showID)
	cancel()
	if err != nil {
		return failure("could not reach the seat store, try again"), transient(err)
	}
	if !moved {
		return failure("no active booking for this show"), ErrNoActiveReservation
	}

	expiresAt := time.Now().Add(e.cfg.PaymentWindow)
	e.scheduleExpiry(ctx, userID, showID, model.Stage2, e.cfg.PaymentWindow)
	return success("hold extended for payment", expiresAt), nil
}

// ConfirmBooking finalizes a paid reservation: seats leave circulation for
// good. The payment itself was verified upstream; this only needs the
// caller-supplied payment id for the event trail. A duplicate confirmation
// finds the tracker already cleared and fails without touching inventory.
func (e *Engine) ConfirmBooking(ctx context.Context, userID, showID, paymentID string) (Result, error) {
	if userID == "" || showID == "" || paymentID == "" {
		return failure("user id, show id and payment id are required"), ErrInvalidInput
	}

	defer e.keys.lock(pairKey(userID, showID)).Unlock()

	opCtx, cancel := e.opCtx(ctx)
	seats, held, err := e.tracker.Get(opCtx, userID, showID)
	cancel()
	if err != nil {
		return failure("could not reach the seat store, try again"), transient(err)
	}
	if !held {
		return failure("no seats found for this booking"), ErrNoActiveReservation
	}

	// Taking the stage membership is the ownership test against a
	// concurrently firing expiry: whichever of the two removes the member
	// proceeds, the other backs off. Stage 2 is the normal case; Stage 1
	// covers a confirmation arriving before payment initiation was
	// recorded.
	opCtx, cancel = e.opCtx(ctx)
	took, err := e.stages.Take(opCtx, model.Stage2, userID, showID)
	cancel()
	if err != nil {
		return failure("could not reach the seat store, try again"), transient(err)
	}
	if !took {
		opCtx, cancel = e.opCtx(ctx)
		took, err = e.stages.Take(opCtx, model.Stage1, userID, showID)
		cancel()
		if err != nil {
			return failure("could not reach the seat store, try again"), transient(err)
		}
	}
	if !took {
		return failure("no seats found for this booking"), ErrNoActiveReservation
	}

	opCtx, cancel = e.opCtx(ctx)
	err = e.inv.MarkSold(opCtx, showID, seats)
	cancel()
	if err != nil {
		return failure("could not reach the seat store, try again"), transient(err)
	}

	e.clearQuiet(ctx, userID, showID)
	e.cancelExpiry(ctx, userID, showID)

	if e.events != nil {
		if err := e.events.PublishConfirmed(ctx, userID, showID, paymentID, seats, time.Now().UTC()); err != nil {
			log.Printf("booking: publish confirmed event for %s/%s failed: %v", userID, showID, err)
		}
	}
	return done("booking confirmed"), nil
}

// CancelBooking releases a live reservation from whichever stage it is in.
// Cancelling a reservation that is already gone (sold, expired, or never
// made) reports AlreadyFinalized rather than failing loudly.
func (e *Engine) CancelBooking(ctx context.Context, userID, showID string) (Result, error) {
	if userID == "" || showID == "" {
		return failure("user id and show id are required"), ErrInvalidInput
	}

	defer e.keys.lock(pairKey(userID, showID)).Unlock()

	opCtx, cancel := e.opCtx(ctx)
	seats, held, err := e.tracker.Get(opCtx, userID, showID)
	cancel()
	if err != nil {
		return failure("could not reach the seat store, try again"), transient(err)
	}
	if !held {
		return failure("nothing to cancel for this show"), ErrAlreadyFinalized
	}

	for _, st := range []model.Stage{model.Stage1, model.Stage2} {
		opCtx, cancel = e.opCtx(ctx)
		err = e.stages.Remove(opCtx, st, userID, showID)
		cancel()
		if err != nil {
			return failure("could not reach the seat store, try again"), transient(err)
		}
	}

	opCtx, cancel = e.opCtx(ctx)
	err = e.inv.Release(opCtx, showID, seats)
	cancel()
	if err != nil {
		return failure("could not reach the seat store, try again"), transient(err)
	}

	e.clearQuiet(ctx, userID, showID)
	e.cancelExpiry(ctx, userID, showID)
	return done("booking cancelled, seats released"), nil
}

// HandleExpiration is the scheduler's callback. The reclaimer re-validates
// that the pair is still in the stage the job was scheduled for and, only
// then, releases the seats, all as one atomic step against the store. A
// job superseded by a later transition, fired twice, or raced against
// cancellation finds the membership gone and does nothing; a stage
// transition racing the reclaim on another server instance cannot observe
// it half-done.
func (e *Engine) HandleExpiration(ctx context.Context, job scheduler.Job) {
	defer e.keys.lock(pairKey(job.UserID, job.ShowID)).Unlock()

	opCtx, cancel := e.opCtx(ctx)
	seats, reclaimed, err := e.reclaim.Reclaim(opCtx, job.Stage, job.UserID, job.ShowID)
	cancel()
	if err != nil {
		log.Printf("booking: expiry reclaim for %s/%s failed: %v", job.UserID, job.ShowID, err)
		return
	}

	e.forgetJob(job.UserID, job.ShowID, job.ID)
	if reclaimed && len(seats) > 0 {
		log.Printf("booking: reclaimed %d seat(s) of show %s from user %s after %s window",
			len(seats), job.ShowID, job.UserID, job.Stage)
	}
}

// scheduleExpiry enqueues a reclamation job for the pair and remembers its
// id so a later transition can cancel it best-effort.
func (e *Engine) scheduleExpiry(ctx context.Context, userID, showID string, stage model.Stage, delay time.Duration) {
	e.cancelExpiry(ctx, userID, showID)
	job := scheduler.Job{
		ID:     uuid.NewString(),
		UserID: userID,
		ShowID: showID,
		Stage:  stage,
	}
	if err := e.sched.Schedule(ctx, job, delay); err != nil {
		// The reservation stands; the tracker's backstop TTL still reclaims
		// it eventually, just later than the window promised.
		log.Printf("booking: schedule %s expiry for %s/%s failed: %v", stage, userID, showID, err)
		return
	}
	e.jobMu.Lock()
	e.jobs[pairKey(userID, showID)] = job.ID
	e.jobMu.Unlock()
}

// cancelExpiry cancels the pair's pending job, if any. Purely advisory: a
// job that already fired is neutralized by stage re-validation instead.
func (e *Engine) cancelExpiry(ctx context.Context, userID, showID string) {
	e.jobMu.Lock()
	id, ok := e.jobs[pairKey(userID, showID)]
	if ok {
		delete(e.jobs, pairKey(userID, showID))
	}
	e.jobMu.Unlock()
	if !ok {
		return
	}
	if err := e.sched.Cancel(ctx, id); err != nil {
		log.Printf("booking: cancel expiry job for %s/%s failed: %v", userID, showID, err)
	}
}

func (e *Engine) forgetJob(userID, showID, jobID string) {
	e.jobMu.Lock()
	if e.jobs[pairKey(userID, showID)] == jobID {
		delete(e.jobs, pairKey(userID, showID))
	}
	e.jobMu.Unlock()
}

// rollbackSeats undoes a TryLock after a later step failed. Best-effort:
// if the release itself fails, the seats stay locked until the stage job
// or backstop TTL reclaims them.
func (e *Engine) rollbackSeats(ctx context.Context, showID string, seats []int) {
	if len(seats) == 0 {
		return
	}
	opCtx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.inv.Release(opCtx, showID, seats); err != nil {
		log.Printf("booking: rollback release for show %s failed: %v", showID, err)
	}
}

func (e *Engine) clearQuiet(ctx context.Context, userID, showID string) {
	opCtx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.tracker.Clear(opCtx, userID, showID); err != nil {
		log.Printf("booking: clear tracker for %s/%s failed: %v", userID, showID, err)
	}
}

// diff returns the ids in a that are not in b, preserving a's order.
func diff(a, b []int) []int {
	in := make(map[int]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}
	var out []int
	for _, id := range a {
		if _, ok := in[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// dedupe drops repeated ids while preserving first-seen order.
func dedupe(seatIDs []int) []int {
	out := make([]int, 0, len(seatIDs))
	seen := make(map[int]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
