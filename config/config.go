package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Engine    EngineConfig
	Store     StoreConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions is the page pool capacity (max concurrently watched tabs).
	MaxSessions int // default: 10

	// DefaultProxy is the default proxy URL for all sessions.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// NavigationTimeout is the max time for opening a session URL.
	NavigationTimeout time.Duration // default: 15s

	// FetchTimeout bounds the offline fetch used by the zap endpoint.
	FetchTimeout time.Duration // default: 15s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// StoreConfig controls settings and stats persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty keeps everything in memory.
	Path string // default: "stealthmode.db"
}

// WebhookConfig controls outbound stats notifications.
type WebhookConfig struct {
	// URL receives every updateStats event. Empty disables delivery.
	URL string

	// Secret signs webhook bodies with HMAC-SHA256 when set.
	Secret string

	Timeout time.Duration // default: 10s
}

// Load reads configuration from environment variables with sane defaults.
// STEALTH_RULES_FILE, when set, names a YAML file whose non-empty fields
// override the engine defaults.
func Load() (*Config, error) {
	engine := DefaultEngineConfig()
	engine.PollInterval = envDurationOr("STEALTH_POLL_INTERVAL", engine.PollInterval)
	engine.GenericInterval = envDurationOr("STEALTH_GENERIC_INTERVAL", engine.GenericInterval)
	engine.SpeedupRate = envFloatOr("STEALTH_SPEEDUP_RATE", engine.SpeedupRate)
	engine.SeekEpsilon = envDurationOr("STEALTH_SEEK_EPSILON", engine.SeekEpsilon)
	engine.SiteHosts = envSliceOr("STEALTH_SITE_HOSTS", engine.SiteHosts)
	engine.RestoreOnDisable = envBoolOr("STEALTH_RESTORE_ON_DISABLE", engine.RestoreOnDisable)
	engine.MutationDebounce = envDurationOr("STEALTH_MUTATION_DEBOUNCE", engine.MutationDebounce)

	if path := os.Getenv("STEALTH_RULES_FILE"); path != "" {
		rules, err := LoadRules(path)
		if err != nil {
			return nil, err
		}
		rules.Apply(&engine)
	}
	if err := engine.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host: envOr("STEALTH_HOST", "0.0.0.0"),
			Port: envIntOr("STEALTH_PORT", 8080),
			Mode: envOr("STEALTH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("STEALTH_HEADLESS", true),
			MaxSessions:       envIntOr("STEALTH_MAX_SESSIONS", 10),
			DefaultProxy:      os.Getenv("STEALTH_PROXY"),
			NoSandbox:         envBoolOr("STEALTH_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("STEALTH_BROWSER_BIN"),
			NavigationTimeout: envDurationOr("STEALTH_NAV_TIMEOUT", 15*time.Second),
			FetchTimeout:      envDurationOr("STEALTH_FETCH_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("STEALTH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("STEALTH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("STEALTH_RATE_RPS", 5.0),
			Burst:             envIntOr("STEALTH_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("STEALTH_LOG_LEVEL", "info"),
			Format: envOr("STEALTH_LOG_FORMAT", "json"),
		},
		Engine: engine,
		Store: StoreConfig{
			Path: envOr("STEALTH_DB_PATH", "stealthmode.db"),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("STEALTH_WEBHOOK_URL"),
			Secret:  os.Getenv("STEALTH_WEBHOOK_SECRET"),
			Timeout: envDurationOr("STEALTH_WEBHOOK_TIMEOUT", 10*time.Second),
		},
	}, nil
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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
