package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenslabs/marketlens-go/internal/telemetry"
)

func initTestTelemetry(t *testing.T) {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = false // no exporter wiring in tests
	require.NoError(t, telemetry.InitTelemetry(*cfg))
}

func TestHealthCheckTelemetryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	initTestTelemetry(t)

	t.Run("healthy probe passes through", func(t *testing.T) {
		router := gin.New()
		router.Use(HealthCheckTelemetryMiddleware())
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "healthy")
	})

	t.Run("degraded probe passes through", func(t *testing.T) {
		router := gin.New()
		router.Use(HealthCheckTelemetryMiddleware())
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		})

		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "degraded")
	})
}

func TestHealthProbePaths(t *testing.T) {
	assert.True(t, HealthProbePaths["/health"])
	assert.True(t, HealthProbePaths["/health/detailed"])
	assert.True(t, HealthProbePaths["/ready"])
	assert.False(t, HealthProbePaths["/api/v1/market/AAPL/analytics"])
}

func TestRecordError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	initTestTelemetry(t)

	router := gin.New()
	router.GET("/fail", func(c *gin.Context) {
		RecordError(c, errors.New("upstream unreachable"), "provider fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider fetch failed"})
	})

	req := httptest.NewRequest("GET", "/fail", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAddSpanAttribute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	initTestTelemetry(t)

	// Every supported type plus the fallthrough case must be accepted
	// without panicking, recording span or not.
	router := gin.New()
	router.GET("/attrs", func(c *gin.Context) {
		AddSpanAttribute(c, "symbol", "AAPL")
		AddSpanAttribute(c, "count", 5)
		AddSpanAttribute(c, "total", int64(10))
		AddSpanAttribute(c, "ratio", 0.5)
		AddSpanAttribute(c, "cached", true)
		AddSpanAttribute(c, "window", struct{ N int }{N: 20})
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest("GET", "/attrs", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthStatusFromCode(t *testing.T) {
	assert.Equal(t, "healthy", healthStatusFromCode(http.StatusOK))
	assert.Equal(t, "healthy", healthStatusFromCode(http.StatusNoContent))
	assert.Equal(t, "client_error", healthStatusFromCode(http.StatusNotFound))
	assert.Equal(t, "server_error", healthStatusFromCode(http.StatusServiceUnavailable))
	assert.Equal(t, "unknown", healthStatusFromCode(http.StatusFound))
}
