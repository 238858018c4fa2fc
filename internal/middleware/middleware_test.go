package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/utils"
)

const secret = "test-secret"

func guarded(roles ...string) *echo.Echo {
	e := echo.New()
	g := e.Group("/staff", JWTAuth(secret), RequireRole(roles...))
	g.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, userID(c))
	})
	return e
}

func call(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/staff/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRole(t *testing.T) {
	staff, _ := utils.NewAccessToken(secret, "host-7", utils.RoleStaff, time.Hour)
	forged, _ := utils.NewAccessToken("other", "host-7", utils.RoleAdmin, time.Hour)

	cases := []struct {
		name   string
		roles  []string
		token  string
		status int
	}{
		{"no token", []string{utils.RoleStaff}, "", http.StatusUnauthorized},
		{"bad signature", []string{utils.RoleAdmin}, forged.Token, http.StatusUnauthorized},
		{"wrong role", []string{utils.RoleAdmin}, staff.Token, http.StatusForbidden},
		{"ok", []string{utils.RoleStaff, utils.RoleAdmin}, staff.Token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(guarded(tc.roles...), tc.token)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if tc.status == http.StatusOK && rec.Body.String() != "host-7" {
				t.Fatalf("user = %q", rec.Body.String())
			}
		})
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/reservations")

	want := map[string]string{
		"ip":       "rl:ip:10.0.0.9",
		"ip_route": "rl:ip:10.0.0.9:route:POST /v1/reservations",
		"user":     "rl:user:anon",
		"":         "rl:ip:10.0.0.9:user:anon:route:POST /v1/reservations",
	}
	for strategy, key := range want {
		cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}
		if got := buildRateKey(cfg, c); got != key {
			t.Errorf("%q: key = %q, want %q", strategy, got, key)
		}
	}
}

func TestTokenBucketWithoutRedisPassesThrough(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil)
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, mw)
	for range 3 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	for ms, want := range map[int64]int{0: 0, 1: 1, 1000: 1, 1001: 2, -5: 0} {
		if got := retryAfterSeconds(ms); got != want {
			t.Errorf("retryAfterSeconds(%d) = %d, want %d", ms, got, want)
		}
	}
}
