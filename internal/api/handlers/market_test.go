package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lenslabs/marketlens-go/internal/cache"
	"github.com/lenslabs/marketlens-go/internal/marketdata"
	"github.com/lenslabs/marketlens-go/internal/models"
)

type MockMarketAnalyzer struct {
	mock.Mock
}

func (m *MockMarketAnalyzer) Analyze(ctx context.Context, symbol, timeframe string) (*models.MarketAnalytics, error) {
	args := m.Called(ctx, symbol, timeframe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MarketAnalytics), args.Error(1)
}

func (m *MockMarketAnalyzer) AnalyzeBatch(ctx context.Context, symbols []string, timeframe string) (*models.BatchAnalytics, error) {
	args := m.Called(ctx, symbols, timeframe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchAnalytics), args.Error(1)
}

type recordingCacheAnalytics struct {
	hits   map[string]int
	misses map[string]int
}

func newRecordingCacheAnalytics() *recordingCacheAnalytics {
	return &recordingCacheAnalytics{
		hits:   make(map[string]int),
		misses: make(map[string]int),
	}
}

func (r *recordingCacheAnalytics) RecordHit(category string) { r.hits[category]++ }

func (r *recordingCacheAnalytics) RecordMiss(category string) { r.misses[category]++ }

func newMarketTestRouter(t *testing.T, analyzer MarketAnalyzer) (*gin.Engine, *recordingCacheAnalytics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	responses := cache.NewRedisResponseCache(client, time.Minute, quietLogger())
	recorder := newRecordingCacheAnalytics()
	handler := NewMarketHandler(analyzer, responses, recorder, quietLogger())

	router := gin.New()
	router.GET("/market/:symbol/analytics", handler.GetAnalytics)
	router.POST("/market/analytics/batch", handler.GetBatchAnalytics)
	return router, recorder
}

func performJSONRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sampleAnalytics(symbol string) *models.MarketAnalytics {
	return &models.MarketAnalytics{
		Symbol:       symbol,
		Timeframe:    "1d",
		CurrentPrice: decimal.NewFromFloat(189.5),
		Trend:        models.TrendAnalysis{Direction: models.TrendBullish},
		ComputedAt:   time.Now().UTC(),
	}
}

func TestMarketHandler_GetAnalytics_MissThenHit(t *testing.T) {
	mockAnalyzer := new(MockMarketAnalyzer)
	mockAnalyzer.On("Analyze", mock.Anything, "AAPL", "1d").Return(sampleAnalytics("AAPL"), nil).Once()

	router, recorder := newMarketTestRouter(t, mockAnalyzer)

	w := performRequest(router, http.MethodGet, "/market/AAPL/analytics")
	assert.Equal(t, http.StatusOK, w.Code)

	var first models.MarketAnalytics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, models.TrendBullish, first.Trend.Direction)
	assert.Equal(t, 1, recorder.misses["analytics"])
	assert.Equal(t, 0, recorder.hits["analytics"])

	// Second read is served from the response cache without touching the
	// aggregator again.
	w = performRequest(router, http.MethodGet, "/market/AAPL/analytics")
	assert.Equal(t, http.StatusOK, w.Code)

	var second models.MarketAnalytics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first.Symbol, second.Symbol)
	assert.Equal(t, 1, recorder.hits["analytics"])
	mockAnalyzer.AssertExpectations(t)
}

func TestMarketHandler_GetAnalytics_TimeframeKeysSeparately(t *testing.T) {
	mockAnalyzer := new(MockMarketAnalyzer)
	mockAnalyzer.On("Analyze", mock.Anything, "AAPL", "1d").Return(sampleAnalytics("AAPL"), nil).Once()
	mockAnalyzer.On("Analyze", mock.Anything, "AAPL", "1h").Return(sampleAnalytics("AAPL"), nil).Once()

	router, recorder := newMarketTestRouter(t, mockAnalyzer)

	w := performRequest(router, http.MethodGet, "/market/AAPL/analytics")
	assert.Equal(t, http.StatusOK, w.Code)
	w = performRequest(router, http.MethodGet, "/market/AAPL/analytics?timeframe=1h")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, recorder.misses["analytics"])
	mockAnalyzer.AssertExpectations(t)
}

func TestMarketHandler_GetAnalytics_UnknownSymbol(t *testing.T) {
	mockAnalyzer := new(MockMarketAnalyzer)
	mockAnalyzer.On("Analyze", mock.Anything, "ZZZZ", "1d").
		Return(nil, fmt.Errorf("failed to fetch candle history for ZZZZ: %w", marketdata.ErrSymbolNotFound))

	router, _ := newMarketTestRouter(t, mockAnalyzer)

	w := performRequest(router, http.MethodGet, "/market/ZZZZ/analytics")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "unknown symbol")
}

func TestMarketHandler_GetAnalytics_ProviderFailure(t *testing.T) {
	mockAnalyzer := new(MockMarketAnalyzer)
	mockAnalyzer.On("Analyze", mock.Anything, "AAPL", "1d").
		Return(nil, fmt.Errorf("failed to fetch quote for AAPL: market data service error (500): upstream down"))

	router, _ := newMarketTestRouter(t, mockAnalyzer)

	w := performRequest(router, http.MethodGet, "/market/AAPL/analytics")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "provider unavailable")
}

func TestMarketHandler_GetAnalytics_NoResponseCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockAnalyzer := new(MockMarketAnalyzer)
	mockAnalyzer.On("Analyze", mock.Anything, "AAPL", "1d").Return(sampleAnalytics("AAPL"), nil)

	recorder := newRecordingCacheAnalytics()
	handler := NewMarketHandler(mockAnalyzer, nil, recorder, quietLogger())
	router := gin.New()
	router.GET("/market/:symbol/analytics", handler.GetAnalytics)

	w := performRequest(router, http.MethodGet, "/market/AAPL/analytics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, recorder.misses["analytics"])
}

func TestMarketHandler_GetBatchAnalytics(t *testing.T) {
	mockAnalyzer := new(MockMarketAnalyzer)
	batch := &models.BatchAnalytics{
		RunID:     "run-1",
		Timeframe: "1d",
		Results: map[string]*models.MarketAnalytics{
			"AAPL": sampleAnalytics("AAPL"),
			"MSFT": sampleAnalytics("MSFT"),
		},
		Failed: map[string]string{"ZZZZ": "symbol not found"},
	}
	mockAnalyzer.On("AnalyzeBatch", mock.Anything, []string{"AAPL", "MSFT", "ZZZZ"}, "1d").Return(batch, nil)

	router, _ := newMarketTestRouter(t, mockAnalyzer)

	w := performJSONRequest(router, http.MethodPost, "/market/analytics/batch", models.BatchAnalyticsRequest{
		Symbols:   []string{"AAPL", "MSFT", "ZZZZ"},
		Timeframe: "1d",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.BatchAnalytics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "run-1", response.RunID)
	assert.Len(t, response.Results, 2)
	assert.Equal(t, "symbol not found", response.Failed["ZZZZ"])
	mockAnalyzer.AssertExpectations(t)
}

func TestMarketHandler_GetBatchAnalytics_InvalidBody(t *testing.T) {
	mockAnalyzer := new(MockMarketAnalyzer)
	router, _ := newMarketTestRouter(t, mockAnalyzer)

	req := httptest.NewRequest(http.MethodPost, "/market/analytics/batch", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockAnalyzer.AssertNotCalled(t, "AnalyzeBatch")
}

func TestMarketHandler_GetBatchAnalytics_TooManySymbols(t *testing.T) {
	mockAnalyzer := new(MockMarketAnalyzer)
	mockAnalyzer.On("AnalyzeBatch", mock.Anything, mock.Anything, "1d").
		Return(nil, fmt.Errorf("batch size 30 exceeds maximum of 25"))

	router, _ := newMarketTestRouter(t, mockAnalyzer)

	symbols := make([]string, 30)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%d", i)
	}
	w := performJSONRequest(router, http.MethodPost, "/market/analytics/batch", models.BatchAnalyticsRequest{
		Symbols:   symbols,
		Timeframe: "1d",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "exceeds maximum")
}
