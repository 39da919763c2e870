// Package store defines the state kept per show and per (user, show) pair
// while a booking is in flight, behind interfaces narrow enough that the
// orchestrator never knows whether it is talking to Redis or to the
// in-process implementations used in tests and degraded single-node mode.
package store

import "errors"

// ErrUnavailable is returned when the backing store cannot be reached or a
// round trip times out. The booking engine translates this into a
// retryable transient result; it is never fatal to the process.
var ErrUnavailable = errors.New("store unavailable")
