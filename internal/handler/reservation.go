package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/ledger"
	"github.com/iliyamo/table-reservation/internal/model"
)

// ReservationHandler serves booking creation, lookup and the lifecycle
// actions.
type ReservationHandler struct {
	Booking *booking.Service
	Log     logrus.FieldLogger
}

// NewReservationHandler panics if a dependency is missing.
func NewReservationHandler(b *booking.Service, log logrus.FieldLogger) *ReservationHandler {
	if b == nil || log == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Booking: b, Log: log}
}

// Create handles POST /v1/reservations.  Without table_id the best-fitting
// free table is assigned.  NO_CAPACITY responses carry the join_waitlist
// hint.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req ledger.CreateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, h.Log, err)
	}
	r, err := h.Booking.Create(c.Request().Context(), req)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	r, err := h.Booking.Ledger().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// List handles GET /v1/restaurants/:id/reservations?date=YYYY-MM-DD
// (staff).  active=true restricts the list to bookings that hold a table.
func (h *ReservationHandler) List(c echo.Context) error {
	date, err := requireQuery(c, "date")
	if err != nil {
		return respond(c, h.Log, err)
	}
	activeOnly, err := queryBool(c, "active", false)
	if err != nil {
		return respond(c, h.Log, err)
	}
	list, err := h.Booking.Ledger().List(c.Request().Context(), c.Param("id"), date, activeOnly)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// Update handles PATCH /v1/reservations/:id (staff).
func (h *ReservationHandler) Update(c echo.Context) error {
	var req ledger.UpdateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, h.Log, err)
	}
	r, err := h.Booking.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

type actionBody struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /v1/reservations/:id/cancel.  It is public so that
// guests can cancel their own booking.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	var body actionBody
	if c.Request().ContentLength > 0 {
		if err := bind(c, &body); err != nil {
			return respond(c, h.Log, err)
		}
	}
	r, err := h.Booking.Cancel(c.Request().Context(), c.Param("id"), body.Reason)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Action handles POST /v1/reservations/:id/:action (staff) where action
// is confirm, seat, complete, cancel or no-show.
func (h *ReservationHandler) Action(c echo.Context) error {
	action := model.Action(c.Param("action"))
	if !validAction(action) {
		return respond(c, h.Log, apperror.New(apperror.InvalidInput, "unknown action %q", action))
	}
	var body actionBody
	if c.Request().ContentLength > 0 {
		if err := bind(c, &body); err != nil {
			return respond(c, h.Log, err)
		}
	}
	r, err := h.Booking.Apply(c.Request().Context(), c.Param("id"), action, body.Reason)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

func validAction(a model.Action) bool {
	for _, known := range model.AllActions {
		if a == known {
			return true
		}
	}
	return false
}
