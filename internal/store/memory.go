package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bharath391/TickingTickets/internal/model"
)

// In-process implementations of the three store interfaces. They back the
// unit tests and the degraded single-node mode the server falls into when
// Redis is unreachable at startup. Each type guards its maps with a single
// mutex; the critical sections are tiny, so one lock per store is enough
// even under heavy contention.

// MemoryInventory implements Inventory with per-show seat sets.
type MemoryInventory struct {
	mu    sync.Mutex
	shows map[string]*memShow
}

type memShow struct {
	available map[int]struct{}
	locked    map[int]struct{}
}

// NewMemoryInventory returns an empty in-process inventory.
func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{shows: make(map[string]*memShow)}
}

func (m *MemoryInventory) InitShow(_ context.Context, showID string, totalSeats int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shows[showID]; ok {
		return false, nil
	}
	s := &memShow{
		available: make(map[int]struct{}, totalSeats),
		locked:    make(map[int]struct{}),
	}
	for i := 1; i <= totalSeats; i++ {
		s.available[i] = struct{}{}
	}
	m.shows[showID] = s
	return true, nil
}

func (m *MemoryInventory) TryLock(_ context.Context, showID string, seatIDs []int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shows[showID]
	if !ok || len(seatIDs) == 0 {
		return false, nil
	}
	// The mutex makes check-then-move a single indivisible step here, the
	// same guarantee the Lua script provides on Redis.
	for _, id := range seatIDs {
		if _, avail := s.available[id]; !avail {
			return false, nil
		}
	}
	for _, id := range seatIDs {
		delete(s.available, id)
		s.locked[id] = struct{}{}
	}
	return true, nil
}

func (m *MemoryInventory) Release(_ context.Context, showID string, seatIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shows[showID]
	if !ok {
		return nil
	}
	for _, id := range seatIDs {
		if _, held := s.locked[id]; held {
			delete(s.locked, id)
			s.available[id] = struct{}{}
		}
	}
	return nil
}

func (m *MemoryInventory) MarkSold(_ context.Context, showID string, seatIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shows[showID]
	if !ok {
		return nil
	}
	for _, id := range seatIDs {
		delete(s.locked, id)
	}
	return nil
}

func (m *MemoryInventory) SeatSets(_ context.Context, showID string) ([]int, []int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shows[showID]
	if !ok {
		return []int{}, []int{}, nil
	}
	return sortedIDs(s.available), sortedIDs(s.locked), nil
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MemoryTracker implements ReservationTracker with an expiring map. The
// backstop TTL is honored lazily on read, which is all the interface
// promises; the scheduler remains the authoritative reclamation path.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]model.Reservation
}

// NewMemoryTracker returns an empty in-process tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[string]model.Reservation)}
}

func (t *MemoryTracker) Put(_ context.Context, userID, showID string, seatIDs []int, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]int, len(seatIDs))
	copy(cp, seatIDs)
	now := time.Now()
	t.entries[userSeatsKey(userID, showID)] = model.Reservation{
		UserID:    userID,
		ShowID:    showID,
		SeatIDs:   cp,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (t *MemoryTracker) Get(_ context.Context, userID, showID string) ([]int, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := userSeatsKey(userID, showID)
	r, ok := t.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(r.ExpiresAt) {
		delete(t.entries, key)
		return nil, false, nil
	}
	cp := make([]int, len(r.SeatIDs))
	copy(cp, r.SeatIDs)
	return cp, true, nil
}

func (t *MemoryTracker) Clear(_ context.Context, userID, showID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, userSeatsKey(userID, showID))
	return nil
}

// MemoryStages implements StageRegistry with one member set per stage.
type MemoryStages struct {
	mu     sync.Mutex
	stages map[model.Stage]map[string]struct{}
}

// NewMemoryStages returns an empty in-process stage registry.
func NewMemoryStages() *MemoryStages {
	return &MemoryStages{stages: map[model.Stage]map[string]struct{}{
		model.Stage1: {},
		model.Stage2: {},
	}}
}

func (s *MemoryStages) Add(_ context.Context, stage model.Stage, userID, showID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[stage][stageMember(userID, showID)] = struct{}{}
	return nil
}

func (s *MemoryStages) In(_ context.Context, stage model.Stage, userID, showID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stages[stage][stageMember(userID, showID)]
	return ok, nil
}

func (s *MemoryStages) Remove(_ context.Context, stage model.Stage, userID, showID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stages[stage], stageMember(userID, showID))
	return nil
}

func (s *MemoryStages) Move(_ context.Context, from, to model.Stage, userID, showID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member := stageMember(userID, showID)
	if _, ok := s.stages[from][member]; !ok {
		return false, nil
	}
	delete(s.stages[from], member)
	s.stages[to][member] = struct{}{}
	return true, nil
}

func (s *MemoryStages) Take(_ context.Context, stage model.Stage, userID, showID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member := stageMember(userID, showID)
	if _, ok := s.stages[stage][member]; !ok {
		return false, nil
	}
	delete(s.stages[stage], member)
	return true, nil
}
