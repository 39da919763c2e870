package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"time"

	"github.com/joho/godotenv" // godotenv loads a local .env file when present
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and endpoints, durations for the
// booking windows and per-operation deadlines.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // catalog database username
	DBPass    string // catalog database password (optional)
	DBHost    string // catalog database host address
	DBPort    string // catalog database port number
	DBName    string // catalog database name
	JWTSecret string // secret used to verify JWTs issued by the auth service
	AMQPURL   string // RabbitMQ URL; confirmation events are disabled when empty
	Booking   BookingConfig
}

// BookingConfig groups the timing knobs of the reservation core.  HoldWindow
// covers seat selection (Stage 1) and PaymentWindow covers checkout
// (Stage 2).  TrackerTTL is the safety backstop on the user-seat mapping;
// the expiration scheduler, not this TTL, is the authoritative reclamation
// path, so the TTL must stay strictly longer than the payment window and is
// clamped to guarantee that.  StoreTimeout bounds every individual store
// round trip.
type BookingConfig struct {
	HoldWindow    time.Duration // Stage 1 seat hold duration
	PaymentWindow time.Duration // Stage 2 payment duration
	TrackerTTL    time.Duration // backstop TTL on the reservation tracker
	StoreTimeout  time.Duration // per-operation store deadline
	MaxSeats      int           // maximum seats per reservation
}

// Load reads configuration values from environment variables and returns a
// Config.  A .env file in the working directory is applied first when it
// exists; real environment variables always win.  Required variables are
// enforced by must() and missing values cause the program to exit with a
// fatal log message.
func Load() Config {
	_ = godotenv.Load() // a missing .env file is not an error

	return Config{
		Env:       must("APP_ENV"),      // environment (dev/test/prod)
		Port:      must("APP_PORT"),     // port to bind the HTTP server
		DBUser:    must("DB_USER"),      // catalog database user
		DBPass:    os.Getenv("DB_PASS"), // catalog database password (empty allowed)
		DBHost:    must("DB_HOST"),      // catalog database host
		DBPort:    must("DB_PORT"),      // catalog database port
		DBName:    must("DB_NAME"),      // catalog database name
		JWTSecret: must("JWT_SECRET"),   // secret used for verifying JWTs
		AMQPURL:   os.Getenv("RABBITMQ_URL"),
		Booking:   LoadBookingConfig(),
	}
}

// LoadBookingConfig reads the booking windows with the product defaults:
// 30 seconds to start checkout, 5 minutes to complete payment.  The tracker
// backstop defaults to ten minutes and can never be configured to fall
// inside the payment window.
func LoadBookingConfig() BookingConfig {
	b := BookingConfig{
		HoldWindow:    envDur("BOOKING_HOLD_WINDOW", 30*time.Second),
		PaymentWindow: envDur("BOOKING_PAYMENT_WINDOW", 5*time.Minute),
		TrackerTTL:    envDur("BOOKING_TRACKER_TTL", 10*time.Minute),
		StoreTimeout:  envDur("BOOKING_STORE_TIMEOUT", 2*time.Second),
		MaxSeats:      envInt("BOOKING_MAX_SEATS", 3),
	}
	if b.TrackerTTL <= b.PaymentWindow {
		b.TrackerTTL = 2 * b.PaymentWindow
	}
	if b.MaxSeats < 1 {
		b.MaxSeats = 1
	}
	if b.StoreTimeout <= 0 {
		b.StoreTimeout = 2 * time.Second
	}
	return b
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
