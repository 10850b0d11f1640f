package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

const testRemoteAddr = "1.2.3.4:1234"

func throttledEcho(r rateLimit) *echo.Echo {
	e := echo.New()
	e.Use(r.middleware())
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/metrics", ok)
	e.GET("/health/live", ok)
	return e
}

func statusOf(e *echo.Echo, path, remote string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit(t *testing.T) {
	strict := rateLimit{PerSecond: 0.01, Burst: 1, Expiry: time.Minute}

	tests := []struct {
		name     string
		limit    rateLimit
		requests []struct{ path, remote string }
		want     []int
	}{
		{
			name:  "under the limit",
			limit: rateLimit{PerSecond: 10, Burst: 3, Expiry: time.Minute},
			requests: []struct{ path, remote string }{
				{"/metrics", testRemoteAddr}, {"/metrics", testRemoteAddr}, {"/metrics", testRemoteAddr},
			},
			want: []int{http.StatusOK, http.StatusOK, http.StatusOK},
		},
		{
			name:  "burst exhausted",
			limit: strict,
			requests: []struct{ path, remote string }{
				{"/metrics", testRemoteAddr}, {"/metrics", testRemoteAddr},
			},
			want: []int{http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name:  "clients are independent",
			limit: strict,
			requests: []struct{ path, remote string }{
				{"/metrics", testRemoteAddr}, {"/metrics", "5.6.7.8:5678"}, {"/metrics", testRemoteAddr},
			},
			want: []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name:  "liveness is never throttled",
			limit: strict,
			requests: []struct{ path, remote string }{
				{"/health/live", testRemoteAddr}, {"/health/live", testRemoteAddr}, {"/health/live", testRemoteAddr},
			},
			want: []int{http.StatusOK, http.StatusOK, http.StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := throttledEcho(tt.limit)
			var got []int
			for _, r := range tt.requests {
				got = append(got, statusOf(e, r.path, r.remote))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
