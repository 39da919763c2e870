// Package catalog reads show metadata from the relational catalog owned by
// an upstream service. The reservation core consumes exactly one fact from
// it: a show's total seat count, read once to seed the inventory before
// booking opens.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bharath391/TickingTickets/internal/model"
	"github.com/bharath391/TickingTickets/internal/store"
)

// ErrShowNotFound is returned when the requested show does not exist in the
// catalog. Handlers should translate this into an HTTP 404 response.
var ErrShowNotFound = errors.New("show not found")

// ShowCatalog provides read access to the shows table.
type ShowCatalog struct {
	db *sql.DB
}

// NewShowCatalog returns a ShowCatalog bound to the provided database.
func NewShowCatalog(db *sql.DB) *ShowCatalog { return &ShowCatalog{db: db} }

// SeatCount returns the total seat count of a show.
func (c *ShowCatalog) SeatCount(ctx context.Context, showID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT seat_count FROM shows WHERE id = ?`, showID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrShowNotFound
		}
		return 0, fmt.Errorf("query seat count for show %s: %w", showID, err)
	}
	return count, nil
}

// Get returns the full show record.
func (c *ShowCatalog) Get(ctx context.Context, showID string) (model.Show, error) {
	var s model.Show
	err := c.db.QueryRowContext(ctx,
		`SELECT id, title, seat_count, starts_at, created_at FROM shows WHERE id = ?`, showID,
	).Scan(&s.ID, &s.Title, &s.SeatCount, &s.StartsAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Show{}, ErrShowNotFound
		}
		return model.Show{}, fmt.Errorf("query show %s: %w", showID, err)
	}
	return s, nil
}

// Opener seeds a show's inventory from the catalog. Counter is the narrow
// slice of the catalog the core needs, so tests can stub it without a
// database.
type Opener struct {
	counter Counter
	inv     store.Inventory
}

// Counter reports a show's total seat count.
type Counter interface {
	SeatCount(ctx context.Context, showID string) (int, error)
}

// Getter reports full show records.
type Getter interface {
	Get(ctx context.Context, showID string) (model.Show, error)
}

// NewOpener returns an Opener seeding inv from counter.
func NewOpener(counter Counter, inv store.Inventory) *Opener {
	return &Opener{counter: counter, inv: inv}
}

// OpenShow makes available seats {1..N} for the show, where N comes from
// the catalog. Seeding runs at most once per show; repeated calls report
// seeded=false and leave the inventory untouched, so opening is safe to
// retry.
func (o *Opener) OpenShow(ctx context.Context, showID string) (seeded bool, total int, err error) {
	total, err = o.counter.SeatCount(ctx, showID)
	if err != nil {
		return false, 0, err
	}
	seeded, err = o.inv.InitShow(ctx, showID, total)
	if err != nil {
		return false, 0, err
	}
	return seeded, total, nil
}
