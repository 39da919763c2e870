package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/bharath391/TickingTickets/internal/handler"    // handlers implementing the booking endpoints
	"github.com/bharath391/TickingTickets/internal/middleware" // JWT authentication and rate limiting
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers and monitoring to verify the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterBooking wires the reservation endpoints.  Everything except the
// health check and the public seat map requires a valid access token; the
// hot lock/pay/cancel/confirm paths additionally sit behind the rate
// limiter so one client cannot hammer the seat store.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, rl echo.MiddlewareFunc) {
	// Guests may browse shows and preview seat maps before logging in.
	e.GET("/v1/shows/:id", h.Show)
	e.GET("/v1/shows/:id/seats", h.Seats)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	if rl != nil {
		auth.Use(rl)
	}

	// The three-stage booking flow, keyed by show in the path.
	auth.POST("/shows/:id/lock", h.LockSeats)
	auth.POST("/shows/:id/pay", h.Pay)
	auth.POST("/shows/:id/cancel", h.Cancel)

	// Invoked by the payment-confirmation collaborator after it has
	// independently verified the payment.
	auth.POST("/bookings/confirm", h.Confirm)

	// Seeds the show's seat inventory from the catalog, exactly once.
	auth.POST("/shows/:id/open", h.OpenShow)
}
