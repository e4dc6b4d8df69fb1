package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/robfig/cron/v3"
)

type Config struct {
	// Server
	Port   int
	DBPath string

	// Reminders
	ReminderCron       string
	ReminderDaysBefore int
	RefreshCron        string
	WebhookURL         string

	// Message content
	PixKey           string
	PixKeyType       string
	MessageSignature string
	MessageClosing   string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvInt("PORT", 8080),
		DBPath:             getEnv("DB_PATH", "fredbilling.db"),
		ReminderCron:       getEnv("REMINDER_CRON", "0 9 * * *"),
		ReminderDaysBefore: getEnvInt("REMINDER_DAYS_BEFORE", 2),
		RefreshCron:        getEnv("REFRESH_CRON", "@hourly"),
		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		PixKey:             getEnv("PIX_KEY", ""),
		PixKeyType:         getEnv("PIX_KEY_TYPE", ""),
		MessageSignature:   getEnv("MESSAGE_SIGNATURE", ""),
		MessageClosing:     getEnv("MESSAGE_CLOSING", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:      getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:          getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.ReminderDaysBefore < 0 {
		return fmt.Errorf("REMINDER_DAYS_BEFORE must not be negative, got %d", c.ReminderDaysBefore)
	}
	if _, err := cron.ParseStandard(c.ReminderCron); err != nil {
		return fmt.Errorf("REMINDER_CRON is invalid: %w", err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("REFRESH_CRON is invalid: %w", err)
	}
	if (c.PixKey == "") != (c.PixKeyType == "") {
		return fmt.Errorf("PIX_KEY and PIX_KEY_TYPE must be set together")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// MessageConfig returns the reminder message settings. PIX details are
// included only when a key is configured.
func (c *Config) MessageConfig() message.Config {
	mc := message.DefaultConfig()
	mc.PixKey = c.PixKey
	mc.PixKeyType = c.PixKeyType
	mc.IncludePix = c.PixKey != ""
	mc.Signature = c.MessageSignature
	mc.ClosingText = c.MessageClosing
	return mc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
