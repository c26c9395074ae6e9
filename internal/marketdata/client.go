package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/models"
)

// ErrSymbolNotFound indicates the provider has no listing for the
// requested symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// Client represents the market data service HTTP client
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	apiKey     string
	timeout    time.Duration
}

// NewClient creates a new market data client instance
func NewClient(cfg config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
	}
}

// HealthCheck checks if the market data service is healthy
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	err := c.makeRequest(ctx, "GET", "/health", nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// IsHealthy reports whether the market data service responded healthy
func (c *Client) IsHealthy(ctx context.Context) bool {
	health, err := c.HealthCheck(ctx)
	if err != nil {
		return false
	}
	return strings.EqualFold(health.Status, "healthy") || strings.EqualFold(health.Status, "ok")
}

// GetQuote retrieves the current quote for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	path := fmt.Sprintf("/api/quote/%s", url.PathEscape(symbol))
	var response QuoteResponse
	if err := c.makeRequest(ctx, "GET", path, nil, &response); err != nil {
		return nil, err
	}

	quote := &models.Quote{
		Symbol:           response.Symbol,
		CurrentPrice:     response.Quote.CurrentPrice,
		DayChange:        response.Quote.DayChange,
		DayChangePercent: response.Quote.DayChangePercent,
		DayHigh:          response.Quote.DayHigh,
		DayLow:           response.Quote.DayLow,
		Timestamp:        response.Quote.Timestamp,
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	return quote, nil
}

// GetCandleHistory retrieves OHLCV history for a symbol and timeframe,
// oldest candle first
func (c *Client) GetCandleHistory(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	path := fmt.Sprintf("/api/history/%s", url.PathEscape(symbol))
	params := url.Values{}
	if timeframe != "" {
		params.Set("timeframe", timeframe)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response HistoryResponse
	if err := c.makeRequest(ctx, "GET", path, nil, &response); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(response.Candles))
	for _, point := range response.Candles {
		candles = append(candles, models.Candle{
			Symbol:    response.Symbol,
			Timeframe: response.Timeframe,
			Timestamp: point.Timestamp,
			Open:      point.Open,
			High:      point.High,
			Low:       point.Low,
			Close:     point.Close,
			Volume:    point.Volume,
		})
	}
	return candles, nil
}

// makeRequest is a helper method to make HTTP requests to the market data service
func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "MarketLens-Go/1.0")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("market data service error (404): %w", ErrSymbolNotFound)
		}
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("market data service error (%d): %s", resp.StatusCode, errorResp.Error)
		}
		return fmt.Errorf("market data service error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// Close closes the HTTP client (if needed for cleanup)
func (c *Client) Close() error {
	// HTTP client doesn't need explicit closing, but this method
	// is provided for interface compatibility
	return nil
}
