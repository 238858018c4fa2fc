package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/recurring"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

// SeriesHandler serves recurring bookings (staff only).
type SeriesHandler struct {
	Recurring *recurring.Service
	Log       logrus.FieldLogger
}

// NewSeriesHandler panics if a dependency is missing.
func NewSeriesHandler(r *recurring.Service, log logrus.FieldLogger) *SeriesHandler {
	if r == nil || log == nil {
		panic("nil dependency passed to NewSeriesHandler")
	}
	return &SeriesHandler{Recurring: r, Log: log}
}

// Create handles POST /v1/series.
func (h *SeriesHandler) Create(c echo.Context) error {
	var req recurring.SeriesRequest
	if err := bind(c, &req); err != nil {
		return respond(c, h.Log, err)
	}
	s, err := h.Recurring.CreateSeries(c.Request().Context(), req)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// Get handles GET /v1/series/:id.
func (h *SeriesHandler) Get(c echo.Context) error {
	return h.result(c)(h.Recurring.Get(c.Request().Context(), c.Param("id")))
}

// Pause handles POST /v1/series/:id/pause.
func (h *SeriesHandler) Pause(c echo.Context) error {
	return h.result(c)(h.Recurring.Pause(c.Request().Context(), c.Param("id")))
}

// Resume handles POST /v1/series/:id/resume.
func (h *SeriesHandler) Resume(c echo.Context) error {
	return h.result(c)(h.Recurring.Resume(c.Request().Context(), c.Param("id")))
}

// Cancel handles POST /v1/series/:id/cancel.  cancel_future=true also
// cancels the series' upcoming bookings.  Failures cancelling individual
// bookings are logged; the series itself stays cancelled.
func (h *SeriesHandler) Cancel(c echo.Context) error {
	future, err := queryBool(c, "cancel_future", false)
	if err != nil {
		return respond(c, h.Log, err)
	}
	s, n, err := h.Recurring.Cancel(c.Request().Context(), c.Param("id"), future)
	if err != nil && s == nil {
		return respond(c, h.Log, err)
	}
	if err != nil {
		h.Log.WithError(err).WithField("series_id", s.ID).Warn("some series reservations were not cancelled")
	}
	return c.JSON(http.StatusOK, echo.Map{"series": s, "cancelled_reservations": n})
}

// Materialize handles POST /v1/series/:id/materialize: book the next
// occurrence now.
func (h *SeriesHandler) Materialize(c echo.Context) error {
	out, err := h.Recurring.MaterializeNext(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Run handles POST /v1/series/run?date=YYYY-MM-DD, processing every due
// series as of date (today when omitted).
func (h *SeriesHandler) Run(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		date = timeutil.FormatDate(time.Now().UTC())
	}
	rep, err := h.Recurring.ProcessScheduledOccurrences(c.Request().Context(), date)
	if _, ok := apperror.As(err); ok {
		return respond(c, h.Log, err)
	}
	if err != nil {
		h.Log.WithError(err).WithField("date", date).Warn("recurring run finished with errors")
		return c.JSON(http.StatusMultiStatus, echo.Map{"report": rep, "error": "some series failed, see server log"})
	}
	return c.JSON(http.StatusOK, echo.Map{"report": rep})
}

func (h *SeriesHandler) result(c echo.Context) func(*model.RecurringSeries, error) error {
	return func(s *model.RecurringSeries, err error) error {
		if err != nil {
			return respond(c, h.Log, err)
		}
		return c.JSON(http.StatusOK, s)
	}
}
