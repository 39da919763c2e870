// Package queue publishes and consumes booking events over RabbitMQ.
package queue

// BookingConfirmedEvent is published when a reservation is successfully
// confirmed, i.e. the moment seats leave circulation for good. It is the
// hand-off point to the durable booking collaborator: downstream consumers
// persist, notify or run analytics from it without querying the fast
// store. Delivery across this boundary is at-least-once; consumers must
// key their writes on PaymentID to stay idempotent.
type BookingConfirmedEvent struct {
	UserID      string `json:"user_id"`
	ShowID      string `json:"show_id"`
	SeatIDs     []int  `json:"seats"`
	PaymentID   string `json:"payment_id"`
	ConfirmedAt string `json:"confirmed_at"`
}
