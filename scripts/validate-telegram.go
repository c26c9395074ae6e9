package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"
	"github.com/lenslabs/marketlens-go/internal/config"
)

// Preflight check for the signal notifier: verifies the Telegram bot token
// and chat id before a deploy, including a live GetMe call.
func main() {
	fmt.Println("Validating Telegram notifier configuration...")

	if err := godotenv.Load(); err != nil {
		fmt.Printf("  warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("FAIL: could not load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Telegram.BotToken == "" {
		fmt.Println("FAIL: TELEGRAM_BOT_TOKEN is not configured (notifier would run disabled)")
		os.Exit(1)
	}
	fmt.Printf("  ok: bot token configured (length %d)\n", len(cfg.Telegram.BotToken))

	chatID, err := strconv.ParseInt(cfg.Telegram.ChatID, 10, 64)
	if err != nil {
		fmt.Printf("FAIL: telegram.chat_id %q is not a numeric chat id: %v\n", cfg.Telegram.ChatID, err)
		os.Exit(1)
	}
	fmt.Printf("  ok: chat id %d\n", chatID)
	fmt.Printf("  ok: min signal strength %.2f\n", cfg.Telegram.MinSignalStrength)

	b, err := bot.New(cfg.Telegram.BotToken, bot.WithSkipGetMe())
	if err != nil {
		fmt.Printf("FAIL: could not create bot: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("  checking bot API connection...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	me, err := b.GetMe(ctx)
	if err != nil {
		fmt.Printf("FAIL: GetMe call failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("  ok: connected as %s (@%s, id %d)\n", me.FirstName, me.Username, me.ID)
	fmt.Println("All Telegram notifier checks passed.")
}
