package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/handlers"
	"route-aggregator/internal/metrics"
)

const testSecret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": c.GetString("admin_username")})
}

func serve(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestRequireAdminAuth(t *testing.T) {
	r := gin.New()
	r.GET("/admin", NewAdminAuthMiddleware(testSecret, quietLogger()).RequireAdminAuth(), okHandler)

	valid, err := handlers.GenerateAdminJWTToken([]byte(testSecret), "alice", time.Hour)
	require.NoError(t, err)
	forged, err := handlers.GenerateAdminJWTToken([]byte("other-secret"), "mallory", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"not bearer", "Basic YWxpY2U6cHc=", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"empty bearer", "Bearer  ", http.StatusUnauthorized, "EMPTY_TOKEN"},
		{"forged", "Bearer " + forged, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"valid", "Bearer " + valid, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w, body := serve(r, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			} else {
				assert.Equal(t, "alice", body["user"])
			}
		})
	}
}

func TestRequireAdminAuthQueryTokenOnlyOnUpgrade(t *testing.T) {
	r := gin.New()
	r.GET("/stream", NewAdminAuthMiddleware(testSecret, quietLogger()).RequireAdminAuth(), okHandler)

	token, err := handlers.GenerateAdminJWTToken([]byte(testSecret), "alice", time.Hour)
	require.NoError(t, err)

	plain := httptest.NewRequest(http.MethodGet, "/stream?token="+token, nil)
	w, _ := serve(r, plain)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	upgrade := httptest.NewRequest(http.MethodGet, "/stream?token="+token, nil)
	upgrade.Header.Set("Connection", "Upgrade")
	upgrade.Header.Set("Upgrade", "websocket")
	w, body := serve(r, upgrade)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", body["user"])
}

func TestRequireAdminAuthWithoutSecretRejectsEverything(t *testing.T) {
	r := gin.New()
	r.GET("/admin", NewAdminAuthMiddleware("", quietLogger()).RequireAdminAuth(), okHandler)

	token, err := handlers.GenerateAdminJWTToken([]byte(testSecret), "alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w, body := serve(r, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
}

func TestLocalhostOnly(t *testing.T) {
	l := NewLocalhostOnly(quietLogger(), []string{"203.0.113.7", "10.1.0.0/16", "not-an-ip", "300.0.0.0/8"})
	r := gin.New()
	r.GET("/admin", l.Restrict(), okHandler)

	tests := []struct {
		remote string
		status int
	}{
		{"127.0.0.1:5000", http.StatusOK},
		{"[::1]:5000", http.StatusOK},
		{"203.0.113.7:5000", http.StatusOK},
		{"10.1.44.2:5000", http.StatusOK},
		{"10.2.0.1:5000", http.StatusForbidden},
		{"198.51.100.1:5000", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.RemoteAddr = tt.remote
			w, body := serve(r, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "IP_NOT_ALLOWED", body["code"])
			}
		})
	}
}

func TestClientThrottlePerIP(t *testing.T) {
	r := gin.New()
	r.GET("/quotes", NewClientThrottle(0.001, 2, quietLogger()).Limit(), okHandler)

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/quotes", nil)
		req.RemoteAddr = remote
		w, _ := serve(r, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call("198.51.100.1:1000").Code)
	assert.Equal(t, http.StatusOK, call("198.51.100.1:1001").Code)

	w := call("198.51.100.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	// other clients keep their own budget
	assert.Equal(t, http.StatusOK, call("198.51.100.2:1000").Code)
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/items/:id", okHandler)

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/items/:id", "200"))
	w, _ := serve(r, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusOK, w.Code)

	after := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/items/:id", "200"))
	assert.Equal(t, before+1, after)
}
