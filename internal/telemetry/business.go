package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// BusinessTracer provides utilities for tracing business logic operations using Sentry.
// It allows detailed tracking of domain-specific activities like indicator computation
// and signal generation.
type BusinessTracer struct{}

// NewBusinessTracer creates a new instance of BusinessTracer.
//
// Returns:
//   - A pointer to an initialized BusinessTracer.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{}
}

// TraceIndicatorComputation starts a span for tracing technical indicator calculations.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - indicator: The name of the technical indicator being calculated.
//   - symbol: The symbol being analyzed.
//   - timeframe: The timeframe of the analysis.
//
// Returns:
//   - A context containing the new span.
//   - The created Sentry span.
func (bt *BusinessTracer) TraceIndicatorComputation(ctx context.Context, indicator string, symbol string, timeframe string) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "indicator_computation")
	span.SetTag("indicator", indicator)
	span.SetTag("symbol", symbol)
	span.SetTag("timeframe", timeframe)
	return ctx, span
}

// RecordIndicatorResult adds the results of an indicator computation to a span.
//
// Parameters:
//   - span: The Sentry span to update.
//   - result: The result of the computation.
func (bt *BusinessTracer) RecordIndicatorResult(span *sentry.Span, result IndicatorComputation) {
	span.SetData("value", result.Value)
	span.SetTag("signal_direction", result.SignalDirection)
	span.SetData("data_points", result.DataPoints)
	span.SetData("is_valid", result.IsValid)
}

// TraceSignalGeneration starts a span for tracing the generation of trading signals.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - symbol: The symbol associated with the signals.
//
// Returns:
//   - A context containing the new span.
//   - The created Sentry span.
func (bt *BusinessTracer) TraceSignalGeneration(ctx context.Context, symbol string) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "signal_generation")
	span.SetTag("symbol", symbol)
	return ctx, span
}

// RecordSignalMetrics records metrics related to signal generation onto a span.
//
// Parameters:
//   - span: The Sentry span to update.
//   - metrics: The signal generation metrics to record.
func (bt *BusinessTracer) RecordSignalMetrics(span *sentry.Span, metrics SignalMetrics) {
	span.SetData("generated_count", metrics.GeneratedCount)
	span.SetData("buy_count", metrics.BuyCount)
	span.SetData("sell_count", metrics.SellCount)
	span.SetData("average_strength", metrics.AverageStrength)
	span.SetData("processing_time_ms", metrics.ProcessingTime.Milliseconds())
}

// TraceMarketDataCollection starts a span for tracing the collection of market data.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - provider: The provider from which data is being collected.
//   - symbols: The list of symbols being collected.
//
// Returns:
//   - A context containing the new span.
//   - The created Sentry span.
func (bt *BusinessTracer) TraceMarketDataCollection(ctx context.Context, provider string, symbols []string) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "market_data_collection")
	span.SetTag("provider", provider)
	span.SetData("symbols", symbols)
	return ctx, span
}

// RecordMarketDataMetrics records metrics related to market data collection onto a span.
//
// Parameters:
//   - span: The Sentry span to update.
//   - metrics: The collection metrics to record.
func (bt *BusinessTracer) RecordMarketDataMetrics(span *sentry.Span, metrics MarketDataMetrics) {
	span.SetData("collected_count", metrics.CollectedCount)
	span.SetData("failed_count", metrics.FailedCount)
	span.SetData("collection_time_ms", metrics.CollectionTime.Milliseconds())
	span.SetData("success_rate", metrics.SuccessRate)
}

// TraceVolatilityAnalysis starts a span for tracing volatility assessment operations.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - symbol: The symbol being assessed.
//
// Returns:
//   - A context containing the new span.
//   - The created Sentry span.
func (bt *BusinessTracer) TraceVolatilityAnalysis(ctx context.Context, symbol string) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "volatility_analysis")
	span.SetTag("symbol", symbol)
	return ctx, span
}

// RecordVolatilityMetrics records volatility assessment metrics onto a span.
//
// Parameters:
//   - span: The Sentry span to update.
//   - metrics: The volatility metrics to record.
func (bt *BusinessTracer) RecordVolatilityMetrics(span *sentry.Span, metrics VolatilityTelemetry) {
	span.SetData("annualized", metrics.Annualized)
	span.SetData("recent_30d", metrics.Recent30d)
	span.SetTag("rank", metrics.Rank)
	span.SetData("percentile", metrics.Percentile)
}

// TraceNotification starts a span for tracing notification delivery.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - notificationType: The type of notification being sent.
//   - channel: The delivery channel (e.g., "telegram").
//
// Returns:
//   - A context containing the new span.
//   - The created Sentry span.
func (bt *BusinessTracer) TraceNotification(ctx context.Context, notificationType string, channel string) (context.Context, *sentry.Span) {
	span := sentry.StartSpan(ctx, "notification")
	span.SetTag("notification_type", notificationType)
	span.SetTag("channel", channel)
	return ctx, span
}

// RecordNotificationResult records the outcome of a notification attempt onto a span.
//
// Parameters:
//   - span: The Sentry span to update.
//   - success: Whether the notification was sent successfully.
//   - recipientCount: The number of recipients.
//   - err: Any error that occurred during sending.
func (bt *BusinessTracer) RecordNotificationResult(span *sentry.Span, success bool, recipientCount int, err error) {
	span.SetData("success", success)
	span.SetData("recipient_count", recipientCount)
	if err != nil {
		span.SetTag("error", err.Error())
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}
}

// IndicatorComputation defines the structure for tracking indicator outcomes in telemetry.
type IndicatorComputation struct {
	Value           float64
	SignalDirection string
	DataPoints      int
	IsValid         bool
}

// SignalMetrics defines the structure for tracking signal generation statistics in telemetry.
type SignalMetrics struct {
	GeneratedCount  int
	BuyCount        int
	SellCount       int
	AverageStrength float64
	ProcessingTime  time.Duration
}

// MarketDataMetrics defines the structure for tracking market data collection statistics in telemetry.
type MarketDataMetrics struct {
	CollectedCount int
	FailedCount    int
	CollectionTime time.Duration
	SuccessRate    float64
}

// VolatilityTelemetry defines the structure for tracking volatility assessment results in telemetry.
type VolatilityTelemetry struct {
	Annualized float64
	Recent30d  float64
	Rank       string
	Percentile float64
}
