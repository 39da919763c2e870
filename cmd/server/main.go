package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bharath391/TickingTickets/internal/booking"
	"github.com/bharath391/TickingTickets/internal/catalog"
	"github.com/bharath391/TickingTickets/internal/config"
	"github.com/bharath391/TickingTickets/internal/database"
	"github.com/bharath391/TickingTickets/internal/handler"
	"github.com/bharath391/TickingTickets/internal/middleware"
	"github.com/bharath391/TickingTickets/internal/queue"
	"github.com/bharath391/TickingTickets/internal/router"
	"github.com/bharath391/TickingTickets/internal/scheduler"
	"github.com/bharath391/TickingTickets/internal/store"
)

// startable is the lifecycle both scheduler implementations share.
type startable interface {
	Start(ctx context.Context)
	Stop()
}

func main() {
	cfg := config.Load()

	// Redis backs the inventory, tracker, stage registry and delay queue.
	// When it is unreachable the server falls back to the in-process
	// stores: correct on a single node, no sharing across instances.
	rdb := config.NewRedisClient()

	var (
		inv     store.Inventory
		tracker store.ReservationTracker
		stages  store.StageRegistry
		reclaim store.Reclaimer
	)
	if rdb != nil {
		inv = store.NewRedisInventory(rdb)
		tracker = store.NewRedisTracker(rdb)
		stages = store.NewRedisStages(rdb)
		reclaim = store.NewRedisReclaimer(rdb)
	} else {
		log.Printf("redis unavailable, using in-process stores")
		minv := store.NewMemoryInventory()
		mtracker := store.NewMemoryTracker()
		mstages := store.NewMemoryStages()
		inv, tracker, stages = minv, mtracker, mstages
		reclaim = store.NewMemoryReclaimer(minv, mtracker, mstages)
	}

	// Confirmation events are optional; without a broker the core still
	// guarantees its locking semantics.
	var events booking.ConfirmedPublisher
	if cfg.AMQPURL != "" {
		events = queue.NewPublisher(cfg.AMQPURL)
		go func() {
			if err := queue.StartBookingConsumer(cfg.AMQPURL); err != nil {
				log.Printf("booking consumer stopped: %v", err)
			}
		}()
	}

	engine := booking.NewEngine(inv, tracker, stages, reclaim, events, cfg.Booking)

	var sched startable
	if rdb != nil {
		s := scheduler.NewRedisScheduler(rdb, engine.HandleExpiration, 4, 250*time.Millisecond)
		engine.UseScheduler(s)
		sched = s
	} else {
		s := scheduler.NewTimerScheduler(engine.HandleExpiration, 4)
		engine.UseScheduler(s)
		sched = s
	}
	sched.Start(context.Background())
	defer sched.Stop()

	// The catalog database supplies show records and seat counts. Booking
	// against already-open shows works without it.
	var (
		opener *catalog.Opener
		shows  catalog.Getter
	)
	if db, err := database.Open(cfg); err != nil {
		log.Printf("catalog database unavailable, show opening disabled: %v", err)
	} else {
		sc := catalog.NewShowCatalog(db)
		opener = catalog.NewOpener(sc, inv)
		shows = sc
	}

	e := echo.New()
	router.RegisterRoutes(e)

	h := handler.NewBookingHandler(engine, opener, shows, inv)
	var rl echo.MiddlewareFunc
	if rdb != nil {
		rl = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	}
	router.RegisterBooking(e, h, cfg.JWTSecret, rl)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
