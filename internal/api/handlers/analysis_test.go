package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lenslabs/marketlens-go/internal/analysis"
	"github.com/lenslabs/marketlens-go/internal/models"
	"github.com/lenslabs/marketlens-go/internal/services"
)

type MockTechnicalAnalyzer struct {
	mock.Mock
}

func (m *MockTechnicalAnalyzer) GetIndicators(ctx context.Context, symbol, timeframe string) (*models.IndicatorSet, error) {
	args := m.Called(ctx, symbol, timeframe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IndicatorSet), args.Error(1)
}

func (m *MockTechnicalAnalyzer) GetSignals(ctx context.Context, symbol, timeframe string) ([]models.TradingSignal, error) {
	args := m.Called(ctx, symbol, timeframe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TradingSignal), args.Error(1)
}

func (m *MockTechnicalAnalyzer) GetTrend(ctx context.Context, symbol, timeframe string) (*models.TrendAnalysis, error) {
	args := m.Called(ctx, symbol, timeframe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TrendAnalysis), args.Error(1)
}

func (m *MockTechnicalAnalyzer) GetLevels(ctx context.Context, symbol, timeframe string) (*models.SupportResistance, error) {
	args := m.Called(ctx, symbol, timeframe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SupportResistance), args.Error(1)
}

func (m *MockTechnicalAnalyzer) AnalyzeSymbol(ctx context.Context, symbol, timeframe string) (*models.AnalysisBreakdown, error) {
	args := m.Called(ctx, symbol, timeframe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalysisBreakdown), args.Error(1)
}

func newAnalysisTestRouter(analyzer TechnicalAnalyzer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewAnalysisHandler(analyzer)

	router := gin.New()
	group := router.Group("/analysis")
	group.GET("/:symbol/indicators", handler.GetIndicators)
	group.GET("/:symbol/signals", handler.GetSignals)
	group.GET("/:symbol/trend", handler.GetTrend)
	group.GET("/:symbol/levels", handler.GetLevels)
	group.GET("/:symbol/breakdown", handler.GetBreakdown)
	return router
}

func TestAnalysisHandler_GetIndicators(t *testing.T) {
	mockAnalyzer := new(MockTechnicalAnalyzer)
	set := &models.IndicatorSet{SMA20: 187.2, RSI14: 61.4}
	mockAnalyzer.On("GetIndicators", mock.Anything, "AAPL", "1d").Return(set, nil)

	router := newAnalysisTestRouter(mockAnalyzer)
	w := performRequest(router, http.MethodGet, "/analysis/AAPL/indicators")
	assert.Equal(t, http.StatusOK, w.Code)

	var response IndicatorsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "AAPL", response.Symbol)
	assert.Equal(t, "1d", response.Timeframe)
	require.NotNil(t, response.Indicators)
	assert.InDelta(t, 187.2, response.Indicators.SMA20, 1e-9)
	assert.InDelta(t, 61.4, response.Indicators.RSI14, 1e-9)
	mockAnalyzer.AssertExpectations(t)
}

func TestAnalysisHandler_GetIndicators_TimeframeQuery(t *testing.T) {
	mockAnalyzer := new(MockTechnicalAnalyzer)
	mockAnalyzer.On("GetIndicators", mock.Anything, "MSFT", "1h").Return(&models.IndicatorSet{}, nil)

	router := newAnalysisTestRouter(mockAnalyzer)
	w := performRequest(router, http.MethodGet, "/analysis/MSFT/indicators?timeframe=1h")
	assert.Equal(t, http.StatusOK, w.Code)
	mockAnalyzer.AssertExpectations(t)
}

func TestAnalysisHandler_GetSignals(t *testing.T) {
	mockAnalyzer := new(MockTechnicalAnalyzer)
	signals := []models.TradingSignal{
		{Type: models.SignalBuy, Indicator: "RSI", Strength: 0.82},
		{Type: models.SignalSell, Indicator: "MACD", Strength: 0.55},
	}
	mockAnalyzer.On("GetSignals", mock.Anything, "AAPL", "1d").Return(signals, nil)

	router := newAnalysisTestRouter(mockAnalyzer)
	w := performRequest(router, http.MethodGet, "/analysis/AAPL/signals")
	assert.Equal(t, http.StatusOK, w.Code)

	var response SignalsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
	require.Len(t, response.Signals, 2)
	assert.Equal(t, models.SignalBuy, response.Signals[0].Type)
	mockAnalyzer.AssertExpectations(t)
}

func TestAnalysisHandler_GetTrend(t *testing.T) {
	mockAnalyzer := new(MockTechnicalAnalyzer)
	trend := &models.TrendAnalysis{Direction: models.TrendBullish, Strength: 0.7, DurationDays: 12}
	mockAnalyzer.On("GetTrend", mock.Anything, "AAPL", "1d").Return(trend, nil)

	router := newAnalysisTestRouter(mockAnalyzer)
	w := performRequest(router, http.MethodGet, "/analysis/AAPL/trend")
	assert.Equal(t, http.StatusOK, w.Code)

	var response TrendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotNil(t, response.Trend)
	assert.Equal(t, models.TrendBullish, response.Trend.Direction)
	assert.Equal(t, 12, response.Trend.DurationDays)
	mockAnalyzer.AssertExpectations(t)
}

func TestAnalysisHandler_GetLevels(t *testing.T) {
	mockAnalyzer := new(MockTechnicalAnalyzer)
	levels := &models.SupportResistance{
		Support:    []float64{180.5, 175.1},
		Resistance: []float64{195.0},
	}
	mockAnalyzer.On("GetLevels", mock.Anything, "AAPL", "1d").Return(levels, nil)

	router := newAnalysisTestRouter(mockAnalyzer)
	w := performRequest(router, http.MethodGet, "/analysis/AAPL/levels")
	assert.Equal(t, http.StatusOK, w.Code)

	var response LevelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotNil(t, response.Levels)
	assert.Equal(t, []float64{180.5, 175.1}, response.Levels.Support)
	assert.Equal(t, []float64{195.0}, response.Levels.Resistance)
	mockAnalyzer.AssertExpectations(t)
}

func TestAnalysisHandler_GetBreakdown(t *testing.T) {
	mockAnalyzer := new(MockTechnicalAnalyzer)
	breakdown := &models.AnalysisBreakdown{
		Symbol:        "AAPL",
		Timeframe:     "1d",
		OverallSignal: models.SignalBuy,
		Confidence:    decimal.NewFromFloat(0.72),
		Indicators: []models.IndicatorResult{
			{Name: "RSI", Signal: models.SignalBuy},
		},
	}
	mockAnalyzer.On("AnalyzeSymbol", mock.Anything, "AAPL", "1d").Return(breakdown, nil)

	router := newAnalysisTestRouter(mockAnalyzer)
	w := performRequest(router, http.MethodGet, "/analysis/AAPL/breakdown")
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.AnalysisBreakdown
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, models.SignalBuy, response.OverallSignal)
	require.Len(t, response.Indicators, 1)
	assert.Equal(t, "RSI", response.Indicators[0].Name)
	mockAnalyzer.AssertExpectations(t)
}

func TestAnalysisHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{
			name:         "no history is not found",
			err:          fmt.Errorf("%w for ZZZZ 1d", services.ErrNoHistory),
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "short history is unprocessable",
			err:          fmt.Errorf("%w: need at least 200 points, got 12", analysis.ErrInsufficientData),
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name:         "anything else is internal",
			err:          errors.New("store exploded"),
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAnalyzer := new(MockTechnicalAnalyzer)
			mockAnalyzer.On("GetIndicators", mock.Anything, "ZZZZ", "1d").Return(nil, tt.err)

			router := newAnalysisTestRouter(mockAnalyzer)
			w := performRequest(router, http.MethodGet, "/analysis/ZZZZ/indicators")
			assert.Equal(t, tt.expectedCode, w.Code)

			var response map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.NotEmpty(t, response["error"])
		})
	}
}
