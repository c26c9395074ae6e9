package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lenslabs/marketlens-go/internal/services"
)

type MockCleanupRunner struct {
	mock.Mock
}

func (m *MockCleanupRunner) RunCleanup(ctx context.Context) (services.CleanupResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(services.CleanupResult), args.Error(1)
}

func newAdminTestRouter(collector CollectorAdmin, cleanup CleanupRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewAdminHandler(collector, cleanup, quietLogger())

	router := gin.New()
	router.GET("/admin/workers", handler.GetWorkers)
	router.POST("/admin/workers/:symbol/restart", handler.RestartWorker)
	router.POST("/admin/cleanup", handler.TriggerCleanup)
	return router
}

func TestAdminHandler_GetWorkers(t *testing.T) {
	collector := healthyCollector()
	router := newAdminTestRouter(collector, new(MockCleanupRunner))

	w := performRequest(router, http.MethodGet, "/admin/workers")
	assert.Equal(t, http.StatusOK, w.Code)

	var response WorkersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
	require.Contains(t, response.Workers, "AAPL")
	assert.Equal(t, "closed", response.Breaker.State)
}

func TestAdminHandler_RestartWorker(t *testing.T) {
	collector := healthyCollector()
	router := newAdminTestRouter(collector, new(MockCleanupRunner))

	w := performRequest(router, http.MethodPost, "/admin/workers/AAPL/restart")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "restarted", response["status"])
	assert.Equal(t, "AAPL", response["symbol"])
	assert.Equal(t, []string{"AAPL"}, collector.restarted)
}

func TestAdminHandler_RestartWorker_Unknown(t *testing.T) {
	collector := healthyCollector()
	collector.restartErr = errors.New("symbol ZZZZ is not on the watchlist")
	router := newAdminTestRouter(collector, new(MockCleanupRunner))

	w := performRequest(router, http.MethodPost, "/admin/workers/ZZZZ/restart")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "not on the watchlist")
}

func TestAdminHandler_TriggerCleanup(t *testing.T) {
	cleanup := new(MockCleanupRunner)
	cutoff := time.Now().Add(-90 * 24 * time.Hour).UTC().Truncate(time.Second)
	cleanup.On("RunCleanup", mock.Anything).Return(services.CleanupResult{
		CandlesPruned:    1200,
		BlacklistCleared: 3,
		Cutoff:           cutoff,
	}, nil)

	router := newAdminTestRouter(healthyCollector(), cleanup)

	w := performRequest(router, http.MethodPost, "/admin/cleanup")
	assert.Equal(t, http.StatusOK, w.Code)

	var response services.CleanupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, int64(1200), response.CandlesPruned)
	assert.Equal(t, int64(3), response.BlacklistCleared)
	assert.Equal(t, cutoff, response.Cutoff)
	cleanup.AssertExpectations(t)
}

func TestAdminHandler_TriggerCleanup_Error(t *testing.T) {
	cleanup := new(MockCleanupRunner)
	cleanup.On("RunCleanup", mock.Anything).Return(services.CleanupResult{}, errors.New("prune failed"))

	router := newAdminTestRouter(healthyCollector(), cleanup)

	w := performRequest(router, http.MethodPost, "/admin/cleanup")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "cleanup failed", response["error"])
	cleanup.AssertExpectations(t)
}
