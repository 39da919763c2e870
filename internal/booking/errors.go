// Package booking implements the state machine that drives seats through
// AVAILABLE → LOCKED → PAYMENT_PENDING → {SOLD | released}. These sentinel
// values classify every way an operation can fail so that the HTTP layer
// can map each one to a status code with errors.Is. Contention outcomes
// (seat taken, stage mismatch) are ordinary negative results, never panics,
// and none of them are fatal to the process.
package booking

import "errors"

// ErrInvalidInput is returned when a request is malformed (bad seat count,
// missing ids) and is rejected before touching any shared state. Handlers
// should translate this into an HTTP 400 response.
var ErrInvalidInput = errors.New("invalid input")

// ErrSeatUnavailable is returned when the atomic seat lock fails because at
// least one requested seat is held or sold. The caller may retry with
// different seats. Handlers should translate this into an HTTP 409.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrNoActiveReservation is returned on a stage mismatch: the pair either
// never locked seats or its claim already expired or was cancelled. The
// two cases are deliberately indistinguishable to the caller; once the
// hold window lapses, the claim is simply gone.
var ErrNoActiveReservation = errors.New("no active reservation")

// ErrAlreadyFinalized is returned when confirm or cancel lands on a
// reservation that was already sold or cleared, such as a retried payment
// webhook. It is a benign outcome and must never double-apply effects.
var ErrAlreadyFinalized = errors.New("booking already finalized")

// ErrStoreUnavailable is returned when the backing store cannot be reached
// within the operation deadline. The failure is retryable by the caller
// and is never retried internally.
var ErrStoreUnavailable = errors.New("temporary store failure")
