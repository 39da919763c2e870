package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadBookingConfig_Defaults(t *testing.T) {
	b := LoadBookingConfig()

	assert.Equal(t, 30*time.Second, b.HoldWindow)
	assert.Equal(t, 5*time.Minute, b.PaymentWindow)
	assert.Equal(t, 10*time.Minute, b.TrackerTTL)
	assert.Equal(t, 2*time.Second, b.StoreTimeout)
	assert.Equal(t, 3, b.MaxSeats)
}

func TestLoadBookingConfig_Overrides(t *testing.T) {
	t.Setenv("BOOKING_HOLD_WINDOW", "45s")
	t.Setenv("BOOKING_PAYMENT_WINDOW", "3m")
	t.Setenv("BOOKING_MAX_SEATS", "6")

	b := LoadBookingConfig()
	assert.Equal(t, 45*time.Second, b.HoldWindow)
	assert.Equal(t, 3*time.Minute, b.PaymentWindow)
	assert.Equal(t, 6, b.MaxSeats)
}

func TestLoadBookingConfig_TrackerTTLClamp(t *testing.T) {
	t.Setenv("BOOKING_PAYMENT_WINDOW", "10m")
	t.Setenv("BOOKING_TRACKER_TTL", "5m")

	b := LoadBookingConfig()
	assert.Equal(t, 20*time.Minute, b.TrackerTTL, "tracker TTL must outlive the payment window")
}

func TestLoadBookingConfig_RejectsNonsenseValues(t *testing.T) {
	t.Setenv("BOOKING_MAX_SEATS", "0")
	t.Setenv("BOOKING_STORE_TIMEOUT", "-1s")

	b := LoadBookingConfig()
	assert.Equal(t, 1, b.MaxSeats)
	assert.Equal(t, 2*time.Second, b.StoreTimeout)
}

func TestLoadBookingConfig_IgnoresMalformedDurations(t *testing.T) {
	t.Setenv("BOOKING_HOLD_WINDOW", "not-a-duration")

	b := LoadBookingConfig()
	assert.Equal(t, 30*time.Second, b.HoldWindow)
}
