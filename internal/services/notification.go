package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/models"
	"github.com/lenslabs/marketlens-go/internal/telemetry"
)

// Signals below this strength are never alerted unless config overrides it.
const defaultMinSignalStrength = 0.7

// Alerts list at most this many signals before truncating.
const maxSignalsPerAlert = 3

// telegramSender is the slice of the bot API the notifier uses. *bot.Bot
// satisfies it.
type telegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// NotificationService pushes trading signal alerts to a Telegram chat. With
// no bot token configured every method is a silent no-op, so callers never
// gate on whether alerting is enabled.
type NotificationService struct {
	sender      telegramSender
	chatID      int64
	minStrength float64
	tracer      *telemetry.BusinessTracer
	logger      *logrus.Logger
}

// NewNotificationService builds the notifier from config. An empty bot token
// yields a disabled notifier and no error; a token with an unparseable chat
// id is a configuration mistake and fails loudly.
func NewNotificationService(cfg config.TelegramConfig, logger *logrus.Logger) (*NotificationService, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	minStrength := cfg.MinSignalStrength
	if minStrength <= 0 {
		minStrength = defaultMinSignalStrength
	}

	ns := &NotificationService{
		minStrength: minStrength,
		tracer:      telemetry.NewBusinessTracer(),
		logger:      logger,
	}

	if cfg.BotToken == "" {
		logger.Info("Telegram notifications disabled, no bot token configured")
		return ns, nil
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}

	b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	ns.sender = b
	ns.chatID = chatID
	return ns, nil
}

// Enabled reports whether alerts will actually be delivered.
func (ns *NotificationService) Enabled() bool {
	return ns.sender != nil
}

// NotifySignals sends one alert covering the strong signals a refresh
// produced for symbol. Weak signals are dropped; delivery failures are
// logged, never propagated, so a Telegram outage cannot fail a refresh.
func (ns *NotificationService) NotifySignals(ctx context.Context, symbol string, signals []models.TradingSignal) {
	if ns.sender == nil {
		return
	}

	strong := make([]models.TradingSignal, 0, len(signals))
	for _, signal := range signals {
		if signal.Strength >= ns.minStrength {
			strong = append(strong, signal)
		}
	}
	if len(strong) == 0 {
		return
	}

	_, span := ns.tracer.TraceNotification(ctx, "signal_alert", "telegram")
	defer span.Finish()

	message := ns.formatSignalMessage(symbol, strong)

	_, err := ns.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    ns.chatID,
		Text:      message,
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		ns.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to send telegram signal alert")
		ns.tracer.RecordNotificationResult(span, false, 0, err)
		return
	}

	ns.tracer.RecordNotificationResult(span, true, 1, nil)
	ns.logger.WithFields(logrus.Fields{
		"symbol":  symbol,
		"signals": len(strong),
	}).Info("Sent telegram signal alert")
}

// formatSignalMessage creates a formatted alert for the given signals
func (ns *NotificationService) formatSignalMessage(symbol string, signals []models.TradingSignal) string {
	topSignals := signals
	if len(signals) > maxSignalsPerAlert {
		topSignals = signals[:maxSignalsPerAlert]
	}

	message := fmt.Sprintf("📊 *Signal Alert: %s*\n\n", symbol)
	message += fmt.Sprintf("%d strong signals on the last refresh:\n\n", len(signals))

	for _, signal := range topSignals {
		message += fmt.Sprintf("%s *%s* via %s\n", signalEmoji(signal.Type), signal.Type, signal.Indicator)
		message += fmt.Sprintf("💪 Strength: *%.0f%%*\n", signal.Strength*100)
		if signal.Description != "" {
			message += fmt.Sprintf("📝 %s\n", signal.Description)
		}
		message += "\n"
	}

	if len(signals) > maxSignalsPerAlert {
		message += fmt.Sprintf("...and %d more signals\n\n", len(signals)-maxSignalsPerAlert)
	}

	message += "⚡ *Trade wisely!* Always manage your risk and position size."

	return message
}

func signalEmoji(signalType models.SignalType) string {
	switch signalType {
	case models.SignalBuy:
		return "📈"
	case models.SignalSell:
		return "📉"
	default:
		return "📊"
	}
}
