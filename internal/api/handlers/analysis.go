package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lenslabs/marketlens-go/internal/analysis"
	"github.com/lenslabs/marketlens-go/internal/middleware"
	"github.com/lenslabs/marketlens-go/internal/models"
	"github.com/lenslabs/marketlens-go/internal/services"
)

// TechnicalAnalyzer is the slice of the technical analysis service the
// handler consumes.
type TechnicalAnalyzer interface {
	GetIndicators(ctx context.Context, symbol, timeframe string) (*models.IndicatorSet, error)
	GetSignals(ctx context.Context, symbol, timeframe string) ([]models.TradingSignal, error)
	GetTrend(ctx context.Context, symbol, timeframe string) (*models.TrendAnalysis, error)
	GetLevels(ctx context.Context, symbol, timeframe string) (*models.SupportResistance, error)
	AnalyzeSymbol(ctx context.Context, symbol, timeframe string) (*models.AnalysisBreakdown, error)
}

type AnalysisHandler struct {
	analysis TechnicalAnalyzer
}

type IndicatorsResponse struct {
	Symbol     string               `json:"symbol"`
	Timeframe  string               `json:"timeframe"`
	Indicators *models.IndicatorSet `json:"indicators"`
	Timestamp  time.Time            `json:"timestamp"`
}

type SignalsResponse struct {
	Symbol    string                 `json:"symbol"`
	Timeframe string                 `json:"timeframe"`
	Signals   []models.TradingSignal `json:"signals"`
	Count     int                    `json:"count"`
	Timestamp time.Time              `json:"timestamp"`
}

type TrendResponse struct {
	Symbol    string                `json:"symbol"`
	Timeframe string                `json:"timeframe"`
	Trend     *models.TrendAnalysis `json:"trend"`
	Timestamp time.Time             `json:"timestamp"`
}

type LevelsResponse struct {
	Symbol    string                    `json:"symbol"`
	Timeframe string                    `json:"timeframe"`
	Levels    *models.SupportResistance `json:"levels"`
	Timestamp time.Time                 `json:"timestamp"`
}

func NewAnalysisHandler(analyzer TechnicalAnalyzer) *AnalysisHandler {
	return &AnalysisHandler{analysis: analyzer}
}

// GetIndicators returns the indicator bundle computed from stored history.
func (h *AnalysisHandler) GetIndicators(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.DefaultQuery("timeframe", "1d")

	set, err := h.analysis.GetIndicators(c.Request.Context(), symbol, timeframe)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, IndicatorsResponse{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Indicators: set,
		Timestamp:  time.Now(),
	})
}

// GetSignals returns the rule-based signals for a symbol. Histories too
// short for the indicator bundle yield an empty list.
func (h *AnalysisHandler) GetSignals(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.DefaultQuery("timeframe", "1d")

	signals, err := h.analysis.GetSignals(c.Request.Context(), symbol, timeframe)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, SignalsResponse{
		Symbol:    symbol,
		Timeframe: timeframe,
		Signals:   signals,
		Count:     len(signals),
		Timestamp: time.Now(),
	})
}

// GetTrend classifies the price trend for a symbol.
func (h *AnalysisHandler) GetTrend(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.DefaultQuery("timeframe", "1d")

	trend, err := h.analysis.GetTrend(c.Request.Context(), symbol, timeframe)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, TrendResponse{
		Symbol:    symbol,
		Timeframe: timeframe,
		Trend:     trend,
		Timestamp: time.Now(),
	})
}

// GetLevels returns support and resistance levels for a symbol.
func (h *AnalysisHandler) GetLevels(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.DefaultQuery("timeframe", "1d")

	levels, err := h.analysis.GetLevels(c.Request.Context(), symbol, timeframe)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, LevelsResponse{
		Symbol:    symbol,
		Timeframe: timeframe,
		Levels:    levels,
		Timestamp: time.Now(),
	})
}

// GetBreakdown returns the extended per-indicator breakdown with the
// weighted overall vote.
func (h *AnalysisHandler) GetBreakdown(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.DefaultQuery("timeframe", "1d")

	breakdown, err := h.analysis.AnalyzeSymbol(c.Request.Context(), symbol, timeframe)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

// respondAnalysisError maps service errors onto the API status codes:
// missing history is 404, a history too short to analyze is 422,
// anything else is a 500 recorded on the active span.
func respondAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNoHistory):
		c.JSON(http.StatusNotFound, gin.H{"error": "no candle history for symbol"})
	case errors.Is(err, analysis.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient history for analysis"})
	default:
		middleware.RecordError(c, err, "analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
	}
}
