package services

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenslabs/marketlens-go/internal/config"
	"github.com/lenslabs/marketlens-go/internal/models"
)

type fakeTelegramSender struct {
	messages []*bot.SendMessageParams
	err      error
}

func (f *fakeTelegramSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.messages = append(f.messages, params)
	return &tgmodels.Message{ID: len(f.messages)}, nil
}

func newTestNotificationService(t *testing.T) (*NotificationService, *fakeTelegramSender) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	ns, err := NewNotificationService(config.TelegramConfig{
		BotToken:          "12345:TEST",
		ChatID:            "-100200300",
		MinSignalStrength: 0.7,
	}, logger)
	require.NoError(t, err)
	require.True(t, ns.Enabled())

	sender := &fakeTelegramSender{}
	ns.sender = sender
	return ns, sender
}

func strongSignal(signalType models.SignalType, indicator string, strength float64) models.TradingSignal {
	return models.TradingSignal{
		Type:        signalType,
		Indicator:   indicator,
		Strength:    strength,
		Description: indicator + " reading crossed its alert band",
	}
}

func TestNewNotificationService_DisabledWithoutToken(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	ns, err := NewNotificationService(config.TelegramConfig{}, logger)
	require.NoError(t, err)
	assert.False(t, ns.Enabled())
	assert.Equal(t, defaultMinSignalStrength, ns.minStrength)

	// Must be a silent no-op, not a panic.
	ns.NotifySignals(context.Background(), "AAPL", []models.TradingSignal{
		strongSignal(models.SignalBuy, "RSI", 0.9),
	})
}

func TestNewNotificationService_InvalidChatID(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	_, err := NewNotificationService(config.TelegramConfig{
		BotToken: "12345:TEST",
		ChatID:   "not-a-chat",
	}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat id")
}

func TestNewNotificationService_StrengthFloor(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	ns, err := NewNotificationService(config.TelegramConfig{MinSignalStrength: 0.55}, logger)
	require.NoError(t, err)
	assert.Equal(t, 0.55, ns.minStrength)
}

func TestNotificationService_NotifySignals(t *testing.T) {
	ns, sender := newTestNotificationService(t)

	ns.NotifySignals(context.Background(), "AAPL", []models.TradingSignal{
		strongSignal(models.SignalBuy, "RSI", 0.82),
		strongSignal(models.SignalSell, "MACD", 0.3), // below threshold
	})

	require.Len(t, sender.messages, 1)
	sent := sender.messages[0]
	assert.Equal(t, int64(-100200300), sent.ChatID)
	assert.Equal(t, tgmodels.ParseModeMarkdown, sent.ParseMode)
	assert.Contains(t, sent.Text, "Signal Alert: AAPL")
	assert.Contains(t, sent.Text, "1 strong signals")
	assert.Contains(t, sent.Text, "📈 *BUY* via RSI")
	assert.Contains(t, sent.Text, "82%")
	assert.NotContains(t, sent.Text, "MACD")
}

func TestNotificationService_NotifySignals_AllWeak(t *testing.T) {
	ns, sender := newTestNotificationService(t)

	ns.NotifySignals(context.Background(), "AAPL", []models.TradingSignal{
		strongSignal(models.SignalBuy, "RSI", 0.4),
		strongSignal(models.SignalSell, "MACD", 0.69),
	})

	assert.Empty(t, sender.messages)
}

func TestNotificationService_NotifySignals_SendFailure(t *testing.T) {
	ns, sender := newTestNotificationService(t)
	sender.err = errors.New("telegram: 429 too many requests")

	// Failures are swallowed so a refresh pass is never failed by alerting.
	ns.NotifySignals(context.Background(), "AAPL", []models.TradingSignal{
		strongSignal(models.SignalBuy, "RSI", 0.9),
	})

	assert.Empty(t, sender.messages)
}

func TestNotificationService_formatSignalMessage(t *testing.T) {
	ns, _ := newTestNotificationService(t)

	signals := []models.TradingSignal{
		strongSignal(models.SignalBuy, "RSI", 0.9),
		strongSignal(models.SignalSell, "MACD", 0.85),
		strongSignal(models.SignalBuy, "BOLLINGER", 0.8),
		strongSignal(models.SignalBuy, "SMA_CROSS", 0.75),
		strongSignal(models.SignalSell, "STOCHASTIC", 0.71),
	}

	message := ns.formatSignalMessage("MSFT", signals)
	assert.Contains(t, message, "Signal Alert: MSFT")
	assert.Contains(t, message, "5 strong signals")
	assert.Contains(t, message, "RSI")
	assert.Contains(t, message, "📉 *SELL* via MACD")
	assert.Contains(t, message, "BOLLINGER")
	assert.Contains(t, message, "...and 2 more signals")
	// Only the top three are listed in full.
	assert.NotContains(t, message, "SMA_CROSS")
	assert.NotContains(t, message, "STOCHASTIC")
	assert.Contains(t, message, "Trade wisely")
}

func TestSignalEmoji(t *testing.T) {
	assert.Equal(t, "📈", signalEmoji(models.SignalBuy))
	assert.Equal(t, "📉", signalEmoji(models.SignalSell))
	assert.Equal(t, "📊", signalEmoji(models.SignalHold))
}
