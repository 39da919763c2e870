package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharath391/TickingTickets/internal/config"
	"github.com/bharath391/TickingTickets/internal/model"
	"github.com/bharath391/TickingTickets/internal/scheduler"
	"github.com/bharath391/TickingTickets/internal/store"
)

// capturedEvent records a confirmation hand-off.
type capturedEvent struct {
	UserID, ShowID, PaymentID string
	SeatIDs                   []int
}

type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (f *fakePublisher) PublishConfirmed(_ context.Context, userID, showID, paymentID string, seatIDs []int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, capturedEvent{UserID: userID, ShowID: showID, PaymentID: paymentID, SeatIDs: seatIDs})
	return nil
}

func (f *fakePublisher) published() []capturedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capturedEvent, len(f.events))
	copy(out, f.events)
	return out
}

type fixture struct {
	engine *Engine
	inv    *store.MemoryInventory
	stages *store.MemoryStages
	events *fakePublisher
	cfg    config.BookingConfig
}

// newFixture wires an engine over the in-process stores with windows short
// enough for the expiration paths to be exercised in real time.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.BookingConfig{
		HoldWindow:    60 * time.Millisecond,
		PaymentWindow: 200 * time.Millisecond,
		TrackerTTL:    time.Minute,
		StoreTimeout:  time.Second,
		MaxSeats:      3,
	}
	inv := store.NewMemoryInventory()
	tracker := store.NewMemoryTracker()
	stages := store.NewMemoryStages()
	events := &fakePublisher{}
	engine := NewEngine(inv, tracker, stages, store.NewMemoryReclaimer(inv, tracker, stages), events, cfg)
	sched := scheduler.NewTimerScheduler(engine.HandleExpiration, 2)
	engine.UseScheduler(sched)
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	_, err := inv.InitShow(context.Background(), "show", 10)
	require.NoError(t, err)
	return &fixture{engine: engine, inv: inv, stages: stages, events: events, cfg: cfg}
}

func (f *fixture) available(t *testing.T) []int {
	t.Helper()
	available, _, err := f.inv.SeatSets(context.Background(), "show")
	require.NoError(t, err)
	return available
}

func (f *fixture) locked(t *testing.T) []int {
	t.Helper()
	_, locked, err := f.inv.SeatSets(context.Background(), "show")
	require.NoError(t, err)
	return locked
}

func (f *fixture) inStage(t *testing.T, stage model.Stage, userID string) bool {
	t.Helper()
	in, err := f.stages.In(context.Background(), stage, userID, "show")
	require.NoError(t, err)
	return in
}

func TestLockSeats_Success(t *testing.T) {
	f := newFixture(t)
	before := time.Now()

	res, err := f.engine.LockSeats(context.Background(), "alice", "show", []int{1, 2})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.ExpiresAt)
	assert.WithinDuration(t, before.Add(f.cfg.HoldWindow), *res.ExpiresAt, 50*time.Millisecond)

	assert.Equal(t, []int{1, 2}, f.locked(t))
	assert.True(t, f.inStage(t, model.Stage1, "alice"))
	assert.False(t, f.inStage(t, model.Stage2, "alice"))
}

func TestLockSeats_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		user  string
		seats []int
	}{
		{"no seats", "alice", nil},
		{"too many seats", "alice", []int{1, 2, 3, 4}},
		{"non-positive id", "alice", []int{0}},
		{"missing user", "", []int{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.engine.LockSeats(ctx, tc.user, "show", tc.seats)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.False(t, res.Success)
		})
	}

	// Duplicated ids collapse to one seat, which is valid.
	res, err := f.engine.LockSeats(ctx, "alice", "show", []int{7, 7, 7, 7})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []int{7}, f.locked(t))
}

func TestLockSeats_OverlapConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.LockSeats(ctx, "alice", "show", []int{1, 2})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = f.engine.LockSeats(ctx, "bob", "show", []int{2, 3})
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	assert.False(t, res.Success)
	assert.Contains(t, f.available(t), 3, "losing caller must not hold any seat")

	res, err = f.engine.LockSeats(ctx, "bob", "show", []int{3, 4})
	require.NoError(t, err)
	assert.True(t, res.Success, "disjoint seats stay lockable")
}

func TestLockSeats_ConcurrentOverlappingCallers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 30
	var wg sync.WaitGroup
	winners := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			res, err := f.engine.LockSeats(ctx, u, "show", []int{1, 2, 3})
			if err == nil && res.Success {
				winners <- u
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()
	close(winners)

	won := 0
	for range winners {
		won++
	}
	assert.Equal(t, 1, won, "overlapping seat sets admit exactly one winner")
	assert.Equal(t, []int{1, 2, 3}, f.locked(t))
}

func TestLockSeats_NewLockOverwritesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1, 2})
	require.NoError(t, err)

	res, err := f.engine.LockSeats(ctx, "alice", "show", []int{5})
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, []int{5}, f.locked(t), "previous claim is released, not merged")
	assert.Contains(t, f.available(t), 1)
	assert.Contains(t, f.available(t), 2)
}

func TestLockSeats_FailedRelockKeepsExistingHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)
	_, err = f.engine.LockSeats(ctx, "bob", "show", []int{2})
	require.NoError(t, err)

	// Alice tries to switch to bob's seat and loses.
	res, err := f.engine.LockSeats(ctx, "alice", "show", []int{2})
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	assert.False(t, res.Success)

	// Her original hold is untouched: seat still locked, stage intact,
	// and the flow still completes.
	assert.Equal(t, []int{1, 2}, f.locked(t))
	assert.True(t, f.inStage(t, model.Stage1, "alice"))

	_, err = f.engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)
	confirmed, err := f.engine.ConfirmBooking(ctx, "alice", "show", "pay-1")
	require.NoError(t, err)
	assert.True(t, confirmed.Success)
}

func TestLockSeats_OverlappingRelockKeepsSharedSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1, 2})
	require.NoError(t, err)

	res, err := f.engine.LockSeats(ctx, "alice", "show", []int{2, 3})
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, []int{2, 3}, f.locked(t))
	assert.Contains(t, f.available(t), 1)
	assert.True(t, f.inStage(t, model.Stage1, "alice"))
}

func TestInitiatePayment_RequiresStage1(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.InitiatePayment(ctx, "alice", "show")
	assert.ErrorIs(t, err, ErrNoActiveReservation)
	assert.False(t, res.Success)
}

func TestInitiatePayment_MovesToStage2Exclusively(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)

	before := time.Now()
	res, err := f.engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.ExpiresAt)
	assert.WithinDuration(t, before.Add(f.cfg.PaymentWindow), *res.ExpiresAt, 50*time.Millisecond)

	assert.False(t, f.inStage(t, model.Stage1, "alice"))
	assert.True(t, f.inStage(t, model.Stage2, "alice"))

	// A second pay call finds Stage 1 gone.
	_, err = f.engine.InitiatePayment(ctx, "alice", "show")
	assert.ErrorIs(t, err, ErrNoActiveReservation)
}

// flakyStages fails the next stage move, standing in for a store hiccup
// mid-transition.
type flakyStages struct {
	store.StageRegistry
	failMove bool
}

func (f *flakyStages) Move(ctx context.Context, from, to model.Stage, userID, showID string) (bool, error) {
	if f.failMove {
		f.failMove = false
		return false, errors.New("connection reset")
	}
	return f.StageRegistry.Move(ctx, from, to, userID, showID)
}

func TestInitiatePayment_StoreFailureLeavesHoldIntact(t *testing.T) {
	cfg := config.BookingConfig{
		HoldWindow:    time.Minute,
		PaymentWindow: 5 * time.Minute,
		TrackerTTL:    10 * time.Minute,
		StoreTimeout:  time.Second,
		MaxSeats:      3,
	}
	inv := store.NewMemoryInventory()
	tracker := store.NewMemoryTracker()
	stages := store.NewMemoryStages()
	flaky := &flakyStages{StageRegistry: stages, failMove: true}
	engine := NewEngine(inv, tracker, flaky, store.NewMemoryReclaimer(inv, tracker, stages), nil, cfg)
	sched := scheduler.NewTimerScheduler(engine.HandleExpiration, 1)
	engine.UseScheduler(sched)
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	ctx := context.Background()
	_, err := inv.InitShow(ctx, "show", 5)
	require.NoError(t, err)

	_, err = engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)

	_, err = engine.InitiatePayment(ctx, "alice", "show")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	// The failed transition must not strand the pair between stages: the
	// hold is still live and a retry succeeds.
	inStage1, err := stages.In(ctx, model.Stage1, "alice", "show")
	require.NoError(t, err)
	assert.True(t, inStage1)

	res, err := engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestHoldExpiry_ReclaimsSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1, 2})
	require.NoError(t, err)

	// Let the Stage 1 window lapse without paying.
	require.Eventually(t, func() bool {
		return len(f.locked(t)) == 0
	}, 2*time.Second, 10*time.Millisecond, "hold expiry must release the seats")

	assert.False(t, f.inStage(t, model.Stage1, "alice"))

	res, err := f.engine.ConfirmBooking(ctx, "alice", "show", "pay-1")
	assert.ErrorIs(t, err, ErrNoActiveReservation)
	assert.False(t, res.Success)

	res, err = f.engine.LockSeats(ctx, "bob", "show", []int{1, 2})
	require.NoError(t, err)
	assert.True(t, res.Success, "reclaimed seats are lockable by others")
}

func TestHoldExpiry_DoesNotTouchStage2Reservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)
	_, err = f.engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)

	// Wait past the Stage 1 window but well inside the Stage 2 window.
	time.Sleep(f.cfg.HoldWindow + 40*time.Millisecond)

	assert.Equal(t, []int{1}, f.locked(t), "stale Stage 1 job must not release a paying user's seats")

	res, err := f.engine.ConfirmBooking(ctx, "alice", "show", "pay-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestPaymentExpiry_ReclaimsSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{4})
	require.NoError(t, err)
	_, err = f.engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.locked(t)) == 0
	}, 2*time.Second, 10*time.Millisecond, "payment expiry must release the seats")
	assert.False(t, f.inStage(t, model.Stage2, "alice"))

	res, err := f.engine.ConfirmBooking(ctx, "alice", "show", "pay-late")
	assert.ErrorIs(t, err, ErrNoActiveReservation)
	assert.False(t, res.Success)
}

func TestConfirmBooking_SellsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1, 2})
	require.NoError(t, err)
	_, err = f.engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)

	res, err := f.engine.ConfirmBooking(ctx, "alice", "show", "pay-1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Sold seats are in neither set.
	assert.NotContains(t, f.available(t), 1)
	assert.NotContains(t, f.available(t), 2)
	assert.Empty(t, f.locked(t))
	assert.False(t, f.inStage(t, model.Stage2, "alice"))

	events := f.events.published()
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, "pay-1", events[0].PaymentID)
	assert.Equal(t, []int{1, 2}, events[0].SeatIDs)
}

func TestConfirmBooking_DuplicateIsHarmless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)
	_, err = f.engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)
	_, err = f.engine.ConfirmBooking(ctx, "alice", "show", "pay-1")
	require.NoError(t, err)

	availableBefore := f.available(t)

	// Retried webhook delivery.
	res, err := f.engine.ConfirmBooking(ctx, "alice", "show", "pay-1")
	assert.ErrorIs(t, err, ErrNoActiveReservation)
	assert.False(t, res.Success)

	assert.Equal(t, availableBefore, f.available(t), "duplicate confirm must not alter inventory")
	assert.Len(t, f.events.published(), 1, "duplicate confirm must not republish")
}

func TestCancelBooking_ReleasesFromEitherStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Cancel out of Stage 1.
	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)
	res, err := f.engine.CancelBooking(ctx, "alice", "show")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, f.available(t), 1)
	assert.False(t, f.inStage(t, model.Stage1, "alice"))

	// Cancel out of Stage 2.
	_, err = f.engine.LockSeats(ctx, "bob", "show", []int{2})
	require.NoError(t, err)
	_, err = f.engine.InitiatePayment(ctx, "bob", "show")
	require.NoError(t, err)
	res, err = f.engine.CancelBooking(ctx, "bob", "show")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, f.available(t), 2)
	assert.False(t, f.inStage(t, model.Stage2, "bob"))

	// Cancelling again finds nothing.
	res, err = f.engine.CancelBooking(ctx, "bob", "show")
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.False(t, res.Success)
}

func TestCancelBooking_DoesNotAffectOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1, 2})
	require.NoError(t, err)
	_, err = f.engine.LockSeats(ctx, "bob", "show", []int{3})
	require.NoError(t, err)

	_, err = f.engine.CancelBooking(ctx, "alice", "show")
	require.NoError(t, err)

	assert.Equal(t, []int{3}, f.locked(t), "bob's claim must survive alice's cancellation")
	assert.True(t, f.inStage(t, model.Stage1, "bob"))
}

func TestStaleExpiryJob_IsNoopAfterManualFire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)
	_, err = f.engine.InitiatePayment(ctx, "alice", "show")
	require.NoError(t, err)

	// Replay a Stage 1 job by hand, simulating a duplicate or late firing
	// that escaped best-effort cancellation.
	f.engine.HandleExpiration(ctx, scheduler.Job{
		ID: "stale", UserID: "alice", ShowID: "show", Stage: model.Stage1,
	})

	assert.Equal(t, []int{1}, f.locked(t), "stale job must not release Stage 2 seats")
	assert.True(t, f.inStage(t, model.Stage2, "alice"))
}

func TestExpiryVsPayment_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.LockSeats(ctx, "alice", "show", []int{1})
	require.NoError(t, err)

	// Race the payment against the hold deadline.
	time.Sleep(f.cfg.HoldWindow - 10*time.Millisecond)
	res, payErr := f.engine.InitiatePayment(ctx, "alice", "show")

	// Give a losing expiry enough time to run to completion.
	time.Sleep(100 * time.Millisecond)

	if payErr == nil && res.Success {
		// Payment won: the seat stays locked for Stage 2.
		assert.Equal(t, []int{1}, f.locked(t))
		assert.True(t, f.inStage(t, model.Stage2, "alice"))
	} else {
		// Expiry won: the claim is fully reclaimed.
		assert.ErrorIs(t, payErr, ErrNoActiveReservation)
		assert.Contains(t, f.available(t), 1)
		assert.False(t, f.inStage(t, model.Stage1, "alice"))
		assert.False(t, f.inStage(t, model.Stage2, "alice"))
	}
}
