// Package handler exposes the booking engine over HTTP.  Handlers are
// thin: they bind the request, call one service operation and map the
// result.  Operational failures become their apperror status; anything
// else is logged and returned as an opaque 500.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
)

// respond maps err onto an HTTP response.  Only apperror values reach the
// client verbatim.
func respond(c echo.Context, log logrus.FieldLogger, err error) error {
	if ae, ok := apperror.As(err); ok {
		return c.JSON(ae.Status(), ae)
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}
	log.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// bind decodes the JSON body into v.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperror.New(apperror.InvalidInput, "invalid request body")
	}
	return nil
}

// queryInt reads an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.New(apperror.InvalidInput, "%s must be an integer", name)
	}
	return n, nil
}

// queryBool reads an optional boolean query parameter.
func queryBool(c echo.Context, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperror.New(apperror.InvalidInput, "%s must be true or false", name)
	}
	return b, nil
}

// requireQuery returns a mandatory query parameter.
func requireQuery(c echo.Context, name string) (string, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return "", apperror.New(apperror.InvalidInput, "%s is required", name)
	}
	return v, nil
}

// items wraps a list the way every list endpoint returns it.
func items[T any](list []T) echo.Map {
	if list == nil {
		list = []T{}
	}
	return echo.Map{"items": list}
}
