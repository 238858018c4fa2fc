// Package app assembles the services and the HTTP server from a store and
// its collaborators.  It holds no configuration parsing; the serve
// command decides which backends to pass in.
package app

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/catalog"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/ledger"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/notify"
	"github.com/iliyamo/table-reservation/internal/recurring"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/router"
	"github.com/iliyamo/table-reservation/internal/waitlist"
)

// Options are the collaborators of an App.  Nil Cache, Locker and
// Publisher fall back to the in-process cache, an in-process keyed mutex
// and a publisher that only logs.
type Options struct {
	Store     repository.Store
	Engine    config.EngineConfig
	Cache     availability.Cache
	Locker    lock.Locker
	Publisher notify.Publisher
	Limiter   echo.MiddlewareFunc
	JWTSecret string
	Checks    map[string]handler.Check
	Log       logrus.FieldLogger
	Now       func() time.Time
}

// App is a fully wired instance of the service.
type App struct {
	Echo         *echo.Echo
	Catalog      *catalog.Catalog
	Availability *availability.Engine
	Ledger       *ledger.Ledger
	Waitlist     *waitlist.Service
	Booking      *booking.Service
	Recurring    *recurring.Service
}

// New builds the services and registers the routes.
func New(o Options) *App {
	if o.Cache == nil {
		o.Cache = availability.NewMemoryCache()
	}
	if o.Locker == nil {
		o.Locker = lock.NewKeyedMutex()
	}
	if o.Publisher == nil {
		o.Publisher = notify.NewLogPublisher(o.Log)
	}
	if o.Limiter == nil {
		o.Limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	policy := availability.Policy{
		PeakStartHour:   o.Engine.PeakStartHour,
		PeakEndHour:     o.Engine.PeakEndHour,
		MaxPeakDuration: o.Engine.PeakMaxDuration,
		SlotInterval:    o.Engine.SlotInterval,
	}
	if policy.MaxPeakDuration == 0 {
		policy = availability.DefaultPolicy()
	}

	cat := catalog.New(o.Store, o.Log, catalog.WithClock(o.Now), catalog.WithInvalidator(o.Cache))
	engine := availability.NewEngine(o.Store, cat, o.Store, o.Cache, availability.Config{
		Policy:          policy,
		CacheTTL:        o.Engine.AvailabilityTTL,
		DefaultDuration: o.Engine.DefaultDuration,
	}, o.Log)
	led := ledger.New(o.Store, cat, policy, o.Cache, o.Locker, o.Log, ledger.WithClock(o.Now))
	wl := waitlist.New(o.Store, o.Locker, o.Log, waitlist.WithClock(o.Now))
	book := booking.New(led, wl, notify.NewDispatcher(o.Publisher), o.Log)

	horizon := o.Engine.RecurringHorizon
	if horizon == 0 {
		horizon = recurring.DefaultHorizonDays
	}
	rec := recurring.New(o.Store, book, o.Locker, o.Log, recurring.WithClock(o.Now), recurring.WithHorizon(horizon))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID(), middleware.RequestLogger(o.Log), echomw.Recover())
	router.RegisterRoutes(e, router.Handlers{
		Health:       handler.NewHealthHandler(o.Checks),
		Restaurants:  handler.NewRestaurantHandler(cat, engine, o.Log),
		Reservations: handler.NewReservationHandler(book, o.Log),
		Waitlist:     handler.NewWaitlistHandler(wl, book, o.Log),
		Series:       handler.NewSeriesHandler(rec, o.Log),
	}, o.JWTSecret, o.Limiter)

	return &App{
		Echo:         e,
		Catalog:      cat,
		Availability: engine,
		Ledger:       led,
		Waitlist:     wl,
		Booking:      book,
		Recurring:    rec,
	}
}
