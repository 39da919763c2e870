package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bharath391/TickingTickets/internal/booking"
	"github.com/bharath391/TickingTickets/internal/catalog"
	"github.com/bharath391/TickingTickets/internal/store"
)

// BookingHandler exposes the reservation core over HTTP.  All methods
// assume JWT authentication has already run, so the user id is available
// in the context; methods return 401 when it is missing.  The handler only
// parses and translates: every decision about seats, stages and windows
// lives in the booking engine.
type BookingHandler struct {
	Engine *booking.Engine // booking state machine
	Opener *catalog.Opener // seeds inventory from the catalog
	Shows  catalog.Getter  // show detail lookups
	Inv    store.Inventory // read-only seat listing
}

// NewBookingHandler constructs a BookingHandler.  Engine and Inv must be
// non-nil; Opener and Shows may be nil when no catalog database is
// configured, which disables the show-opening and show-detail endpoints.
func NewBookingHandler(engine *booking.Engine, opener *catalog.Opener, shows catalog.Getter, inv store.Inventory) *BookingHandler {
	if engine == nil || inv == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: engine, Opener: opener, Shows: shows, Inv: inv}
}

// getUserID extracts the authenticated user id placed in the context by the
// JWT middleware.
func getUserID(c echo.Context) (string, error) {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("no user in context")
}

// LockSeats handles POST /v1/shows/:id/lock.  Body: {"seats": [1,2,3]}.
// On success the seats are held for the Stage 1 window and the response
// carries the expiry timestamp.  Contended seats produce 409 so clients
// can prompt for a different selection.
func (h *BookingHandler) LockSeats(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID := c.Param("id")
	if showID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show id is required"})
	}
	var body struct {
		Seats []int `json:"seats"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res, err := h.Engine.LockSeats(c.Request().Context(), userID, showID, body.Seats)
	return respond(c, res, err)
}

// Pay handles POST /v1/shows/:id/pay.  It exchanges the short seat hold for
// the longer payment window.
func (h *BookingHandler) Pay(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID := c.Param("id")
	if showID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show id is required"})
	}

	res, err := h.Engine.InitiatePayment(c.Request().Context(), userID, showID)
	return respond(c, res, err)
}

// Cancel handles POST /v1/shows/:id/cancel.  It releases the caller's
// reservation from whichever stage it is in.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID := c.Param("id")
	if showID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show id is required"})
	}

	res, err := h.Engine.CancelBooking(c.Request().Context(), userID, showID)
	return respond(c, res, err)
}

// Confirm handles POST /v1/bookings/confirm.  Body: {"show_id": "...",
// "payment_id": "..."}.  The payment collaborator has already verified the
// payment before calling this; duplicate webhook deliveries get a graceful
// failure rather than a double-applied booking.
func (h *BookingHandler) Confirm(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		ShowID    string `json:"show_id"`
		PaymentID string `json:"payment_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res, err := h.Engine.ConfirmBooking(c.Request().Context(), userID, body.ShowID, body.PaymentID)
	return respond(c, res, err)
}

// OpenShow handles POST /v1/shows/:id/open.  It seeds the show's available
// seat set from the catalog's seat count, exactly once; reopening an
// already-open show is a harmless no-op reported as such.
func (h *BookingHandler) OpenShow(c echo.Context) error {
	if h.Opener == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "catalog not configured"})
	}
	showID := c.Param("id")
	if showID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show id is required"})
	}
	seeded, total, err := h.Opener.OpenShow(c.Request().Context(), showID)
	if err != nil {
		if errors.Is(err, catalog.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "could not open show"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"seeded":     seeded,
		"seat_count": total,
	})
}

// Show handles GET /v1/shows/:id.  It returns the catalog record for one
// show.
func (h *BookingHandler) Show(c echo.Context) error {
	if h.Shows == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "catalog not configured"})
	}
	showID := c.Param("id")
	if showID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show id is required"})
	}
	show, err := h.Shows.Get(c.Request().Context(), showID)
	if err != nil {
		if errors.Is(err, catalog.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "catalog unavailable"})
	}
	return c.JSON(http.StatusOK, show)
}

// Seats handles GET /v1/shows/:id/seats.  It returns the live available and
// locked seat ids so clients can render the seat map.
func (h *BookingHandler) Seats(c echo.Context) error {
	showID := c.Param("id")
	if showID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show id is required"})
	}
	available, locked, err := h.Inv.SeatSets(c.Request().Context(), showID)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "seat store unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"available": available,
		"locked":    locked,
	})
}

// respond maps an engine result and error to an HTTP response.  The result
// body is returned as-is for both outcomes; only the status code encodes
// the error class.
func respond(c echo.Context, res booking.Result, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, res)
	}
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, res)
	case errors.Is(err, booking.ErrSeatUnavailable):
		return c.JSON(http.StatusConflict, res)
	case errors.Is(err, booking.ErrNoActiveReservation),
		errors.Is(err, booking.ErrAlreadyFinalized):
		return c.JSON(http.StatusBadRequest, res)
	case errors.Is(err, booking.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, res)
	}
	return c.JSON(http.StatusInternalServerError, res)
}
