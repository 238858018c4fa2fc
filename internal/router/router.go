// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/utils"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Health       *handler.HealthHandler
	Restaurants  *handler.RestaurantHandler
	Reservations *handler.ReservationHandler
	Waitlist     *handler.WaitlistHandler
	Series       *handler.SeriesHandler
}

// RegisterRoutes mounts the health check, the public API under /v1 and the
// staff API under /v1 behind JWT and role checks.  Booking creation and
// waitlist sign-up pass through limiter.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", h.Health.Health)
	RegisterPublic(e, h, limiter)
	RegisterStaff(e, h, jwtSecret)
}

// RegisterPublic registers routes that guests can call without a token.
func RegisterPublic(e *echo.Echo, h Handlers, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")

	g.GET("/restaurants", h.Restaurants.ListRestaurants)
	g.GET("/restaurants/:id", h.Restaurants.GetRestaurant)
	g.GET("/restaurants/:id/open", h.Restaurants.IsOpen)
	g.GET("/restaurants/:id/availability", h.Restaurants.Availability)
	g.GET("/restaurants/:id/tables", h.Restaurants.ListTables)

	g.POST("/reservations", h.Reservations.Create, limiter)
	g.GET("/reservations/:id", h.Reservations.Get)
	g.POST("/reservations/:id/cancel", h.Reservations.Cancel)

	g.POST("/waitlist", h.Waitlist.Join, limiter)
	g.GET("/waitlist/:id", h.Waitlist.Get)
	g.GET("/waitlist/:id/position", h.Waitlist.Position)
	g.POST("/waitlist/:id/cancel", h.Waitlist.Cancel)
}

// RegisterStaff registers routes that need a STAFF or ADMIN token.
func RegisterStaff(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleStaff, utils.RoleAdmin),
	)

	// ---- Restaurants & tables ----
	g.POST("/restaurants", h.Restaurants.CreateRestaurant)
	g.PATCH("/restaurants/:id", h.Restaurants.UpdateRestaurant)
	g.POST("/restaurants/:id/tables", h.Restaurants.CreateTable)
	g.PATCH("/tables/:id", h.Restaurants.UpdateTable)
	g.DELETE("/tables/:id", h.Restaurants.DeleteTable)

	// ---- Reservations ----
	g.GET("/restaurants/:id/reservations", h.Reservations.List)
	g.PATCH("/reservations/:id", h.Reservations.Update)
	g.POST("/reservations/:id/:action", h.Reservations.Action)

	// ---- Waitlist ----
	g.GET("/restaurants/:id/waitlist", h.Waitlist.List)
	g.POST("/waitlist/:id/notify", h.Waitlist.Notify)
	g.POST("/waitlist/:id/expire", h.Waitlist.Expire)
	g.POST("/waitlist/:id/convert", h.Waitlist.Convert)

	// ---- Recurring series ----
	g.POST("/series", h.Series.Create)
	g.POST("/series/run", h.Series.Run)
	g.GET("/series/:id", h.Series.Get)
	g.POST("/series/:id/pause", h.Series.Pause)
	g.POST("/series/:id/resume", h.Series.Resume)
	g.POST("/series/:id/cancel", h.Series.Cancel)
	g.POST("/series/:id/materialize", h.Series.Materialize)
}
