package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LuckyPipe state data
	DefaultStateDir = "/var/lib/luckypipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "luckypipe.db"
)

// Config holds environment configuration. Command line flags override it.
type Config struct {
	StateDir              string  `envconfig:"LUCKYPIPE_STATE_DIR" default:"/var/lib/luckypipe"`
	DatabaseURL           string  `envconfig:"DATABASE_URL"`
	OpenAIKey             string  `envconfig:"OPENAI_API_KEY"`
	OpenAIModel           string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	APIAddr               string  `envconfig:"API_ADDR" default:":8080"`
	RedisAddr             string  `envconfig:"REDIS_ADDR"`
	LogLevel              string  `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat             string  `envconfig:"LOG_FORMAT" default:"text"`
	ReceiptStubAmount     string  `envconfig:"RECEIPT_STUB_AMOUNT" default:"25.00"`
	ReceiptStubConfidence float64 `envconfig:"RECEIPT_STUB_CONFIDENCE" default:"90"`
	ChatRateLimit         int     `envconfig:"CHAT_RATE_LIMIT" default:"60"`
	AdminToken            string  `envconfig:"ADMIN_TOKEN"`
}

// loadEnvironmentConfig loads configuration from the .env file and environment variables.
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	slog.Debug("environment variables loaded",
		"LUCKYPIPE_STATE_DIR", cfg.StateDir,
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"OPENAI_API_KEY_SET", cfg.OpenAIKey != "",
		"OPENAI_MODEL", cfg.OpenAIModel,
		"API_ADDR", cfg.APIAddr,
		"REDIS_ADDR_SET", cfg.RedisAddr != "",
		"CHAT_RATE_LIMIT", cfg.ChatRateLimit,
		"ADMIN_TOKEN_SET", cfg.AdminToken != "")
	return cfg, nil
}

// DSN returns the database DSN, defaulting to SQLite in the state directory.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// setupLogging installs the default slog logger.
func setupLogging(level, format string, w io.Writer) error {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "", "info":
		slogLevel = slog.LevelInfo
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text", "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
