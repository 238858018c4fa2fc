package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/waitlist"
)

// WaitlistHandler serves the waitlist.  Manual offers go through the
// booking service so that the guest is actually notified.
type WaitlistHandler struct {
	Waitlist *waitlist.Service
	Booking  *booking.Service
	Log      logrus.FieldLogger
}

// NewWaitlistHandler panics if a dependency is missing.
func NewWaitlistHandler(w *waitlist.Service, b *booking.Service, log logrus.FieldLogger) *WaitlistHandler {
	if w == nil || b == nil || log == nil {
		panic("nil dependency passed to NewWaitlistHandler")
	}
	return &WaitlistHandler{Waitlist: w, Booking: b, Log: log}
}

// Join handles POST /v1/waitlist.
func (h *WaitlistHandler) Join(c echo.Context) error {
	var req waitlist.EnqueueRequest
	if err := bind(c, &req); err != nil {
		return respond(c, h.Log, err)
	}
	e, err := h.Waitlist.Enqueue(c.Request().Context(), req)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// Get handles GET /v1/waitlist/:id.
func (h *WaitlistHandler) Get(c echo.Context) error {
	e, err := h.Waitlist.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Position handles GET /v1/waitlist/:id/position.  Entries that are no
// longer waiting report position -1 and no estimate.
func (h *WaitlistHandler) Position(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	pos, err := h.Waitlist.Position(ctx, id)
	if err != nil {
		return respond(c, h.Log, err)
	}
	body := echo.Map{"id": id, "position": pos}
	if wait, ok, err := h.Waitlist.EstimatedWaitMinutes(ctx, id); err != nil {
		return respond(c, h.Log, err)
	} else if ok {
		body["estimated_wait_minutes"] = wait
	}
	return c.JSON(http.StatusOK, body)
}

// List handles GET /v1/restaurants/:id/waitlist?date=YYYY-MM-DD (staff).
func (h *WaitlistHandler) List(c echo.Context) error {
	date, err := requireQuery(c, "date")
	if err != nil {
		return respond(c, h.Log, err)
	}
	list, err := h.Waitlist.List(c.Request().Context(), c.Param("id"), date)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// Cancel handles POST /v1/waitlist/:id/cancel.
func (h *WaitlistHandler) Cancel(c echo.Context) error {
	return h.result(c)(h.Waitlist.Cancel(c.Request().Context(), c.Param("id")))
}

// Notify handles POST /v1/waitlist/:id/notify (staff).
func (h *WaitlistHandler) Notify(c echo.Context) error {
	return h.result(c)(h.Booking.NotifyWaitlist(c.Request().Context(), c.Param("id")))
}

// Expire handles POST /v1/waitlist/:id/expire (staff).
func (h *WaitlistHandler) Expire(c echo.Context) error {
	return h.result(c)(h.Waitlist.Expire(c.Request().Context(), c.Param("id")))
}

// Convert handles POST /v1/waitlist/:id/convert (staff) with body
// {"reservation_id": "..."}: the guest was seated from the waitlist.
func (h *WaitlistHandler) Convert(c echo.Context) error {
	var body struct {
		ReservationID string `json:"reservation_id"`
	}
	if err := bind(c, &body); err != nil {
		return respond(c, h.Log, err)
	}
	if body.ReservationID == "" {
		return respond(c, h.Log, apperror.New(apperror.InvalidInput, "reservation_id is required"))
	}
	return h.result(c)(h.Waitlist.ConvertToReservation(c.Request().Context(), c.Param("id"), body.ReservationID))
}

func (h *WaitlistHandler) result(c echo.Context) func(*model.WaitlistEntry, error) error {
	return func(e *model.WaitlistEntry, err error) error {
		if err != nil {
			return respond(c, h.Log, err)
		}
		return c.JSON(http.StatusOK, e)
	}
}
