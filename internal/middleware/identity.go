package middleware

import "github.com/labstack/echo/v4"

// userID returns the authenticated staff subject, or "anon" for guests.
func userID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
