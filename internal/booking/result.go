package booking

import "time"

// Result is the outcome reported to API clients for every booking
// operation. ExpiresAt is set only on operations that open or extend a
// reservation window.
type Result struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func failure(msg string) Result {
	return Result{Success: false, Message: msg}
}

func success(msg string, expiresAt time.Time) Result {
	return Result{Success: true, Message: msg, ExpiresAt: &expiresAt}
}

func done(msg string) Result {
	return Result{Success: true, Message: msg}
}
