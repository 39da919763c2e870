package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/bharath391/TickingTickets/internal/config"
)

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	cfg := config.RateLimitConfig{Prefix: "rl"}

	req := httptest.NewRequest("POST", "/v1/shows/abc/lock", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/shows/:id/lock")
	c.Set("user_id", "alice")

	assert.Equal(t, "rl:user:alice:route:POST /v1/shows/:id/lock", buildRateKey(cfg, c))

	// Unauthenticated callers are keyed by client IP instead.
	req = httptest.NewRequest("GET", "/v1/shows/abc/seats", nil)
	req.RemoteAddr = "192.0.2.7:4711"
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/shows/:id/seats")

	assert.Equal(t, "rl:user:192.0.2.7:route:GET /v1/shows/:id/seats", buildRateKey(cfg, c))
}
