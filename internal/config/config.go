package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the client.
type Config struct {
	ServerURL   string // GraphQL HTTP endpoint
	WSURL       string // GraphQL subscription endpoint
	ConfigDir   string // where the bearer credential is stored
	Env         string
	Timeout     time.Duration // bound for queries and mutations
	MetricsAddr string        // optional promhttp listen address
	LogFile     string        // optional log destination (the TUI owns the terminal)
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		ServerURL:   getEnv("QLCHAT_URL", "http://localhost:8000/graphql"),
		WSURL:       os.Getenv("QLCHAT_WS_URL"),
		ConfigDir:   os.Getenv("QLCHAT_CONFIG"),
		Env:         getEnv("ENV", "development"),
		Timeout:     15 * time.Second,
		MetricsAddr: os.Getenv("QLCHAT_METRICS_ADDR"),
		LogFile:     os.Getenv("QLCHAT_LOG_FILE"),
	}

	if secs := os.Getenv("QLCHAT_TIMEOUT"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil && n > 0 {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}

	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.ServerURL)
	}

	if cfg.ConfigDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ConfigDir = filepath.Join(home, ".qlchat")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// deriveWSURL swaps the HTTP scheme for the websocket one, keeping host
// and path. Subscriptions are served on the same endpoint.
func deriveWSURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
