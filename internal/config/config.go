package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Monitor  MonitorConfig
	Browser  BrowserConfig
	Store    StoreConfig
	Notifier NotifierConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

type MonitorConfig struct {
	SellerURLs    []string
	CheckInterval time.Duration
	PageTimeout   time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
}

type BrowserConfig struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
}

type StoreConfig struct {
	Backend   string // file, redis
	FilePath  string
	RedisAddr string
	RedisDB   int
	RedisKey  string
}

type NotifierConfig struct {
	Type           string // telegram, log
	TelegramToken  string
	TelegramChatID int64
}

type StatusConfig struct {
	// Addr for the operator status API; empty disables the server.
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Monitor: MonitorConfig{
			SellerURLs:    getStringSliceOrDefault("SELLER_URLS", nil),
			CheckInterval: getDurationOrDefault("CHECK_INTERVAL", 5*time.Minute),
			PageTimeout:   getDurationOrDefault("PAGE_TIMEOUT", 45*time.Second),
			MaxAttempts:   getIntOrDefault("FETCH_MAX_ATTEMPTS", 3),
			RetryDelay:    getDurationOrDefault("FETCH_RETRY_DELAY", 5*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "UTC"),
		},
		Store: StoreConfig{
			Backend:   getEnvOrDefault("STORE_BACKEND", "file"),
			FilePath:  getEnvOrDefault("SEEN_FILE", "seen_products.json"),
			RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisDB:   getIntOrDefault("REDIS_DB", 0),
			RedisKey:  getEnvOrDefault("REDIS_SEEN_KEY", "bs-monitor:seen"),
		},
		Notifier: NotifierConfig{
			Type:           getEnvOrDefault("NOTIFIER", "telegram"),
			TelegramToken:  os.Getenv("TG_TOKEN"),
			TelegramChatID: getInt64OrDefault("TG_CHAT_ID", 0),
		},
		Status: StatusConfig{
			Addr: getEnvOrDefault("STATUS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Monitor.SellerURLs) == 0 {
		return fmt.Errorf("SELLER_URLS must list at least one seller page")
	}
	for _, raw := range c.Monitor.SellerURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid seller URL %q: %w", raw, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid seller URL %q: must be absolute http(s)", raw)
		}
	}

	if c.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive")
	}
	if c.Monitor.PageTimeout <= 0 {
		return fmt.Errorf("PAGE_TIMEOUT must be positive")
	}
	if c.Monitor.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.Monitor.RetryDelay < 0 {
		return fmt.Errorf("FETCH_RETRY_DELAY cannot be negative")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.FilePath == "" {
			return fmt.Errorf("SEEN_FILE is required for the file store")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want file or redis)", c.Store.Backend)
	}

	switch c.Notifier.Type {
	case "telegram":
		if c.Notifier.TelegramToken == "" || c.Notifier.TelegramChatID == 0 {
			return fmt.Errorf("TG_TOKEN and TG_CHAT_ID are required for the telegram notifier")
		}
	case "log":
	default:
		return fmt.Errorf("unknown NOTIFIER %q (want telegram or log)", c.Notifier.Type)
	}

	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
