package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Provider    ProviderConfig  `mapstructure:"provider"`
	Analysis    AnalysisConfig  `mapstructure:"analysis"`
	Watchlist   WatchlistConfig `mapstructure:"watchlist"`
	Retention   RetentionConfig `mapstructure:"retention"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Security    SecurityConfig  `mapstructure:"security"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Sentry      SentryConfig    `mapstructure:"sentry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ProviderConfig points at the upstream market-data service that supplies
// historical candles and live quotes.
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key" json:"-" yaml:"-"`
	Timeout int    `mapstructure:"timeout"`
}

type AnalysisConfig struct {
	// MACDSignalMode selects how the MACD signal line is derived: "legacy"
	// keeps the 0.2x-line approximation existing consumers depend on,
	// "ema9" switches to a true 9-period EMA of the MACD line.
	MACDSignalMode string `mapstructure:"macd_signal_mode"`
	CacheTTL       string `mapstructure:"cache_ttl"`
	HistoryPoints  int    `mapstructure:"history_points"`
	MaxBatchSize   int    `mapstructure:"max_batch_size"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
}

type WatchlistConfig struct {
	Symbols         []string `mapstructure:"symbols"`
	Timeframe       string   `mapstructure:"timeframe"`
	RefreshInterval string   `mapstructure:"refresh_interval"`
	MaxRetries      int      `mapstructure:"max_retries"`
}

// RetentionConfig bounds how much history the candle store keeps.
type RetentionConfig struct {
	CandleRetention string `mapstructure:"candle_retention"`
	CleanupInterval string `mapstructure:"cleanup_interval"`
}

type TelegramConfig struct {
	BotToken          string  `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID            string  `mapstructure:"chat_id"`
	MinSignalStrength float64 `mapstructure:"min_signal_strength"`
}

type SecurityConfig struct {
	AdminAPIKey     string `mapstructure:"admin_api_key" json:"-" yaml:"-"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" json:"-" yaml:"-"`
	JWTSecret       string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry       string `mapstructure:"jwt_expiry"`
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

type SentryConfig struct {
	DSN              string  `mapstructure:"dsn" json:"-" yaml:"-"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind secrets that only ever arrive through the environment
	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("security.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}
	if err := viper.BindEnv("provider.api_key", "PROVIDER_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind PROVIDER_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("sentry.dsn", "SENTRY_DSN"); err != nil {
		return nil, fmt.Errorf("failed to bind SENTRY_DSN environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Environment != "development" && config.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	if config.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(config.Security.JWTExpiry); err != nil {
			return fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	if config.Security.BcryptCost < bcrypt.MinCost || config.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, config.Security.BcryptCost)
	}

	switch config.Analysis.MACDSignalMode {
	case "legacy", "ema9":
	default:
		return fmt.Errorf("analysis.macd_signal_mode must be \"legacy\" or \"ema9\", got %q",
			config.Analysis.MACDSignalMode)
	}

	if _, err := time.ParseDuration(config.Analysis.CacheTTL); err != nil {
		return fmt.Errorf("invalid analysis cache TTL: %w", err)
	}

	if _, err := time.ParseDuration(config.Watchlist.RefreshInterval); err != nil {
		return fmt.Errorf("invalid watchlist refresh interval: %w", err)
	}

	if config.Provider.BaseURL == "" {
		return errors.New("provider.base_url must be configured")
	}

	if config.Analysis.MaxConcurrent < 1 {
		return fmt.Errorf("analysis.max_concurrent must be at least 1, got %d",
			config.Analysis.MaxConcurrent)
	}

	return nil
}

// CacheTTLDuration returns the parsed analytics cache TTL. Load validates
// the string, so the fallback only covers hand-built configs in tests.
func (c *AnalysisConfig) CacheTTLDuration() time.Duration {
	ttl, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return ttl
}

// RefreshIntervalDuration returns the parsed watchlist refresh interval.
func (c *WatchlistConfig) RefreshIntervalDuration() time.Duration {
	interval, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 15 * time.Minute
	}
	return interval
}

// CandleRetentionDuration returns the parsed candle retention window.
func (c *RetentionConfig) CandleRetentionDuration() time.Duration {
	retention, err := time.ParseDuration(c.CandleRetention)
	if err != nil {
		return 90 * 24 * time.Hour
	}
	return retention
}

// CleanupIntervalDuration returns the parsed cleanup cadence.
func (c *RetentionConfig) CleanupIntervalDuration() time.Duration {
	interval, err := time.ParseDuration(c.CleanupInterval)
	if err != nil {
		return time.Hour
	}
	return interval
}

// JWTExpiryDuration returns the parsed JWT lifetime.
func (c *SecurityConfig) JWTExpiryDuration() time.Duration {
	expiry, err := time.ParseDuration(c.JWTExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return expiry
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "marketlens")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Market data provider
	viper.SetDefault("provider.name", "lenslabs-quotes")
	viper.SetDefault("provider.base_url", "http://localhost:3001")
	viper.SetDefault("provider.api_key", "")
	viper.SetDefault("provider.timeout", 30)

	// Analysis
	viper.SetDefault("analysis.macd_signal_mode", "legacy")
	viper.SetDefault("analysis.cache_ttl", "15m")
	viper.SetDefault("analysis.history_points", 250)
	viper.SetDefault("analysis.max_batch_size", 25)
	viper.SetDefault("analysis.max_concurrent", 5)

	// Watchlist
	viper.SetDefault("watchlist.symbols", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"})
	viper.SetDefault("watchlist.timeframe", "1d")
	viper.SetDefault("watchlist.refresh_interval", "15m")
	viper.SetDefault("watchlist.max_retries", 3)

	// Retention
	viper.SetDefault("retention.candle_retention", "2160h")
	viper.SetDefault("retention.cleanup_interval", "1h")

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")
	viper.SetDefault("telegram.min_signal_strength", 0.7)

	// Security
	viper.SetDefault("security.admin_api_key", "")
	viper.SetDefault("security.admin_api_key_hash", "")
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.bcrypt_cost", 12)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.endpoint", "localhost:4318")

	// Sentry
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.traces_sample_rate", 0.1)
}
