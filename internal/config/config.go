// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"

	"rss_relay/internal/benefits"
)

// Config holds the application configuration.
type Config struct {
	DiscordBotToken    string
	TelegramBotToken   string
	DatabasePath       string
	LogLevel           string
	PollInterval       time.Duration
	DeliveryWorkers    int
	DeliveryRatePerSec float64
	PruneSchedule      string
	Benefits           benefits.Policy
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DiscordBotToken:    os.Getenv("DISCORD_BOT_TOKEN"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:       envOr("DATABASE_PATH", "./data/relay.db"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		PollInterval:       time.Minute,
		DeliveryWorkers:    16,
		DeliveryRatePerSec: 25,
		PruneSchedule:      envOr("PRUNE_SCHEDULE", "0 4 * * *"),
		Benefits:           benefits.DefaultPolicy(),
	}
	if cfg.DiscordBotToken == "" && cfg.TelegramBotToken == "" {
		return nil, errors.New("DISCORD_BOT_TOKEN or TELEGRAM_BOT_TOKEN is required")
	}

	if raw := os.Getenv("POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q", raw)
		}
		cfg.PollInterval = d
	}

	if raw := os.Getenv("DELIVERY_WORKERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DELIVERY_WORKERS %q", raw)
		}
		cfg.DeliveryWorkers = n
	}

	if raw := os.Getenv("DELIVERY_RATE_PER_SEC"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r < 0 {
			return nil, fmt.Errorf("invalid DELIVERY_RATE_PER_SEC %q", raw)
		}
		cfg.DeliveryRatePerSec = r
	}

	if path := os.Getenv("BENEFITS_FILE"); path != "" {
		if err := loadPolicy(path, &cfg.Benefits); err != nil {
			return nil, err
		}
	}

	if raw := os.Getenv("ENABLE_SUPPORTERS"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ENABLE_SUPPORTERS %q: %w", raw, err)
		}
		cfg.Benefits.EnableSupporters = enabled
	}

	return cfg, nil
}

// loadPolicy overlays the YAML file at path onto policy. Keys missing from
// the file keep their current values.
func loadPolicy(path string, policy *benefits.Policy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read benefits file: %w", err)
	}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return fmt.Errorf("parse benefits file %s: %w", path, err)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
