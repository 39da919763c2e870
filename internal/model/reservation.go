package model

import "time"

// Reservation represents one user's claim on a set of seats for one show.
// It is owned exclusively by the (user, show) pair: a new lock attempt
// overwrites it rather than merging, and it is deleted on cancellation,
// expiration or confirmation.
//
// Fields:
//  UserID    – user holding the seats.
//  ShowID    – show the seats belong to.
//  SeatIDs   – seat ids claimed, 1 to 3 inclusive, deduplicated.
//  CreatedAt – when the claim was made.
//  ExpiresAt – when the current stage's window runs out.
type Reservation struct {
	UserID    string    `json:"user_id"`    // owner of the claim
	ShowID    string    `json:"show_id"`    // show being booked
	SeatIDs   []int     `json:"seat_ids"`   // seats claimed within the show
	CreatedAt time.Time `json:"created_at"` // claim creation time
	ExpiresAt time.Time `json:"expires_at"` // current window deadline
}
