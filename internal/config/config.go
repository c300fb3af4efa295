package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL           string
	StateDSN         string
	LogLevel         string
	Model            string
	ResponseType     string
	Temperature      float64
	PollInterval     time.Duration
	SyncRecheckDelay time.Duration
	HTTPTimeout      time.Duration
	Port             int
	APIToken         string
	NatsURL          string
	NatsToken        string
	SlackBotToken    string
	SlackChannel     string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; variables already set win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIURL:           envStr("ORACLE_API_URL", "http://localhost:8000"),
		StateDSN:         envStr("ORACLE_STATE_DSN", "~/.oracle/state.db"),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		Model:            envStr("ORACLE_MODEL", "llama3.2"),
		ResponseType:     envStr("ORACLE_RESPONSE_TYPE", "concise"),
		Temperature:      envFloat("ORACLE_TEMPERATURE", 0.7),
		PollInterval:     envDuration("ORACLE_POLL_INTERVAL", 30*time.Second),
		SyncRecheckDelay: envDuration("ORACLE_SYNC_RECHECK_DELAY", 2*time.Second),
		HTTPTimeout:      envDuration("ORACLE_HTTP_TIMEOUT", 120*time.Second),
		Port:             envInt("ORACLE_PORT", 8760),
		APIToken:         envStr("ORACLE_API_TOKEN", ""),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		SlackBotToken:    envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:     envStr("SLACK_CHANNEL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
