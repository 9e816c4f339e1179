package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Pool      PoolConfig
	Engine    EngineConfig
	Challenge ChallengeConfig
	Scraper   ScraperConfig
	Crawl     CrawlConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the daemon HTTP server.
type ServerConfig struct {
	Host string `validate:"required"`                 // default: "127.0.0.1"
	Port int    `validate:"min=1,max=65535"`          // default: 8787
	Mode string `validate:"oneof=debug release test"` // default: "release"
}

// BrowserConfig controls the Chromium process and how each session's tab is
// prepared.
type BrowserConfig struct {
	Headless   bool // default: true
	NoSandbox  bool // default: false
	BrowserBin string
	Proxy      string

	// ControlURL connects to an already running browser instead of launching.
	ControlURL string

	// Stealth injects the evasion script into every new tab.
	Stealth bool // default: true

	UserAgent string

	// BlockedResourceTypes lists resource types the hijack router fails.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
	BlockAds             bool // default: true
}

// PoolConfig sizes the browser session pool.
type PoolConfig struct {
	Size                int           `validate:"min=1"` // default: 2
	RetireAfterRequests int           `validate:"min=0"` // default: 100
	RetireAfterAge      time.Duration `validate:"min=0"` // default: 30m
	MaxQueueSize        int           `validate:"min=0"` // default: 100
	QueueTimeout        time.Duration `validate:"gt=0"`  // default: 60s
	RecycleInterval     time.Duration `validate:"gt=0"`  // default: 1m
	HealthInterval      time.Duration `validate:"gt=0"`  // default: 5m
}

// EngineConfig controls the engine cascade.
type EngineConfig struct {
	// Order is the default cascade order.
	Order []string `validate:"min=1,dive,oneof=direct-fetch fingerprinted-client browser-automation"`

	Skip  []string `validate:"dive,oneof=direct-fetch fingerprinted-client browser-automation"`
	Force string   `validate:"omitempty,oneof=direct-fetch fingerprinted-client browser-automation"`

	// MinContentLength is the visible-text threshold below which a page
	// counts as insufficient.
	MinContentLength int `validate:"min=0"` // default: 100
}

// ChallengeConfig bounds challenge resolution and redirect settling.
type ChallengeConfig struct {
	MaxWait        time.Duration `validate:"gt=0"` // default: 45s
	PollInterval   time.Duration `validate:"gt=0"` // default: 500ms
	SettleMaxWait  time.Duration `validate:"gt=0"` // default: 15s
	SettlePollRate time.Duration `validate:"gt=0"` // default: 500ms
}

// ScraperConfig controls per-request behaviour of the scrape client.
type ScraperConfig struct {
	// DefaultTimeout is the whole-cascade budget when a request names none.
	DefaultTimeout time.Duration `validate:"gt=0"` // default: 30s

	// MaxTimeout clamps client-supplied timeouts.
	MaxTimeout time.Duration `validate:"gtefield=DefaultTimeout"` // default: 120s

	MaxRetries       int `validate:"min=0,max=10"` // default: 2
	BatchConcurrency int `validate:"min=1"`        // default: 2
}

// CrawlConfig holds crawler defaults.
type CrawlConfig struct {
	MaxDepth int           `validate:"min=0"` // default: 1
	MaxPages int           `validate:"min=1"` // default: 20
	Delay    time.Duration `validate:"min=0"` // default: 1s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `validate:"gt=0"`  // default: 5
	Burst             int     `validate:"min=1"` // default: 10
}

// CacheConfig controls the scrape response cache.
type CacheConfig struct {
	MaxEntries int `validate:"min=0"` // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"` // default: "info"
	Format string `validate:"oneof=json text"`             // default: "text"

	// File, when set, sends logs to a rotating file instead of stderr.
	File       string
	MaxSizeMB  int `validate:"min=0"` // default: 50
	MaxBackups int `validate:"min=0"` // default: 3
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("READER_HOST", "127.0.0.1"),
			Port: envIntOr("READER_PORT", 8787),
			Mode: envOr("READER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("READER_HEADLESS", true),
			NoSandbox:  envBoolOr("READER_NO_SANDBOX", false),
			BrowserBin: os.Getenv("READER_BROWSER_BIN"),
			Proxy:      os.Getenv("READER_PROXY"),
			ControlURL: os.Getenv("READER_BROWSER_URL"),
			Stealth:    envBoolOr("READER_STEALTH", true),
			UserAgent:  os.Getenv("READER_USER_AGENT"),
			BlockedResourceTypes: envSliceOr("READER_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("READER_BLOCK_ADS", true),
		},
		Pool: PoolConfig{
			Size:                envIntOr("READER_POOL_SIZE", 2),
			RetireAfterRequests: envIntOr("READER_POOL_RETIRE_AFTER", 100),
			RetireAfterAge:      envDurationOr("READER_POOL_MAX_AGE", 30*time.Minute),
			MaxQueueSize:        envIntOr("READER_POOL_MAX_QUEUE", 100),
			QueueTimeout:        envDurationOr("READER_POOL_QUEUE_TIMEOUT", 60*time.Second),
			RecycleInterval:     envDurationOr("READER_POOL_RECYCLE_INTERVAL", time.Minute),
			HealthInterval:      envDurationOr("READER_POOL_HEALTH_INTERVAL", 5*time.Minute),
		},
		Engine: EngineConfig{
			Order: envSliceOr("READER_ENGINES", []string{
				"direct-fetch", "fingerprinted-client", "browser-automation",
			}),
			Skip:             envSliceOr("READER_SKIP_ENGINES", nil),
			Force:            os.Getenv("READER_FORCE_ENGINE"),
			MinContentLength: envIntOr("READER_MIN_CONTENT_LENGTH", 100),
		},
		Challenge: ChallengeConfig{
			MaxWait:        envDurationOr("READER_CHALLENGE_MAX_WAIT", 45*time.Second),
			PollInterval:   envDurationOr("READER_CHALLENGE_POLL", 500*time.Millisecond),
			SettleMaxWait:  envDurationOr("READER_SETTLE_MAX_WAIT", 15*time.Second),
			SettlePollRate: envDurationOr("READER_SETTLE_POLL", 500*time.Millisecond),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:   envDurationOr("READER_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:       envDurationOr("READER_MAX_TIMEOUT", 120*time.Second),
			MaxRetries:       envIntOr("READER_MAX_RETRIES", 2),
			BatchConcurrency: envIntOr("READER_BATCH_CONCURRENCY", 2),
		},
		Crawl: CrawlConfig{
			MaxDepth: envIntOr("READER_CRAWL_MAX_DEPTH", 1),
			MaxPages: envIntOr("READER_CRAWL_MAX_PAGES", 20),
			Delay:    envDurationOr("READER_CRAWL_DELAY", time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("READER_AUTH_ENABLED", false),
			APIKeys: envSliceOr("READER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("READER_RATE_RPS", 5.0),
			Burst:             envIntOr("READER_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("READER_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:      envOr("READER_LOG_LEVEL", "info"),
			Format:     envOr("READER_LOG_FORMAT", "text"),
			File:       os.Getenv("READER_LOG_FILE"),
			MaxSizeMB:  envIntOr("READER_LOG_MAX_SIZE_MB", 50),
			MaxBackups: envIntOr("READER_LOG_MAX_BACKUPS", 3),
		},
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s %s", e.Namespace(), describe(e)))
		}
		return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("config: invalid: auth enabled but READER_API_KEYS is empty")
	}
	return nil
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "gtefield":
		return fmt.Sprintf("must be at least %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
