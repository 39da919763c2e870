package model

import "time"

// Show represents a scheduled screening whose seats can be booked.  The
// catalog database owns this record; the reservation core reads it to seed
// the inventory before booking opens and to serve show detail lookups.
//
// Fields:
//  ID        – opaque identifier assigned by the catalog.
//  Title     – movie title or an external reference.
//  SeatCount – total seats in the hall, immutable once booking opens.
//  StartsAt  – when the show begins.
//  CreatedAt – creation timestamp.
type Show struct {
	ID        string    `json:"id"`         // shows.id
	Title     string    `json:"title"`      // shows.title
	SeatCount int       `json:"seat_count"` // shows.seat_count
	StartsAt  time.Time `json:"starts_at"`  // shows.starts_at
	CreatedAt time.Time `json:"created_at"` // shows.created_at
}
