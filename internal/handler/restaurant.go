package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/catalog"
)

// RestaurantHandler serves restaurant and table management plus the
// public availability query.
type RestaurantHandler struct {
	Catalog *catalog.Catalog
	Engine  *availability.Engine
	Log     logrus.FieldLogger
}

// NewRestaurantHandler panics if a dependency is missing.
func NewRestaurantHandler(cat *catalog.Catalog, engine *availability.Engine, log logrus.FieldLogger) *RestaurantHandler {
	if cat == nil || engine == nil || log == nil {
		panic("nil dependency passed to NewRestaurantHandler")
	}
	return &RestaurantHandler{Catalog: cat, Engine: engine, Log: log}
}

// ListRestaurants handles GET /v1/restaurants.
func (h *RestaurantHandler) ListRestaurants(c echo.Context) error {
	list, err := h.Catalog.ListRestaurants(c.Request().Context())
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// GetRestaurant handles GET /v1/restaurants/:id.
func (h *RestaurantHandler) GetRestaurant(c echo.Context) error {
	r, err := h.Catalog.Restaurant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// CreateRestaurant handles POST /v1/restaurants (staff).
func (h *RestaurantHandler) CreateRestaurant(c echo.Context) error {
	var in catalog.RestaurantInput
	if err := bind(c, &in); err != nil {
		return respond(c, h.Log, err)
	}
	r, err := h.Catalog.CreateRestaurant(c.Request().Context(), in)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// UpdateRestaurant handles PATCH /v1/restaurants/:id (staff).  Only the
// fields present in the body change.
func (h *RestaurantHandler) UpdateRestaurant(c echo.Context) error {
	var in catalog.RestaurantInput
	if err := bind(c, &in); err != nil {
		return respond(c, h.Log, err)
	}
	r, err := h.Catalog.UpdateRestaurant(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// IsOpen handles GET /v1/restaurants/:id/open?time=HH:MM.
func (h *RestaurantHandler) IsOpen(c echo.Context) error {
	clock, err := requireQuery(c, "time")
	if err != nil {
		return respond(c, h.Log, err)
	}
	open, err := h.Engine.IsOpenAt(c.Request().Context(), c.Param("id"), clock)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"restaurant_id": c.Param("id"), "time": clock, "open": open})
}

// Availability handles GET /v1/restaurants/:id/availability with the
// query parameters date, party_size and optional duration (minutes).
func (h *RestaurantHandler) Availability(c echo.Context) error {
	date, err := requireQuery(c, "date")
	if err != nil {
		return respond(c, h.Log, err)
	}
	party, err := queryInt(c, "party_size", 0)
	if err != nil {
		return respond(c, h.Log, err)
	}
	duration, err := queryInt(c, "duration", 0)
	if err != nil {
		return respond(c, h.Log, err)
	}
	res, err := h.Engine.GetAvailability(c.Request().Context(), availability.Query{
		RestaurantID:    c.Param("id"),
		Date:            date,
		PartySize:       party,
		DurationMinutes: duration,
	})
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListTables handles GET /v1/restaurants/:id/tables.  active=true hides
// deactivated tables.
func (h *RestaurantHandler) ListTables(c echo.Context) error {
	activeOnly, err := queryBool(c, "active", false)
	if err != nil {
		return respond(c, h.Log, err)
	}
	list, err := h.Catalog.ListTables(c.Request().Context(), c.Param("id"), activeOnly)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// CreateTable handles POST /v1/restaurants/:id/tables (staff).
func (h *RestaurantHandler) CreateTable(c echo.Context) error {
	var in catalog.TableInput
	if err := bind(c, &in); err != nil {
		return respond(c, h.Log, err)
	}
	t, err := h.Catalog.CreateTable(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// UpdateTable handles PATCH /v1/tables/:id (staff).  Setting is_active to
// false deactivates the table without touching its bookings.
func (h *RestaurantHandler) UpdateTable(c echo.Context) error {
	var in catalog.TableInput
	if err := bind(c, &in); err != nil {
		return respond(c, h.Log, err)
	}
	t, err := h.Catalog.UpdateTable(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// DeleteTable handles DELETE /v1/tables/:id (staff).
func (h *RestaurantHandler) DeleteTable(c echo.Context) error {
	if err := h.Catalog.DeleteTable(c.Request().Context(), c.Param("id")); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
