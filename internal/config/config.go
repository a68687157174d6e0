// Package config loads and validates service configuration from
// environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all service configuration.
type Config struct {
	// HTTP server
	Host string
	Port int

	// Browser backend
	Headless       bool
	BrowserPath    string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	StealthMode    bool

	// Session pool
	MaxSessions            int
	AllowUnlimitedSessions bool
	LivenessInterval       time.Duration

	// Extraction defaults
	DefaultTimeout   time.Duration
	MaxTimeout       time.Duration
	RetryAttempts    int
	RetryBackoff     time.Duration
	MinContentLength int
	SettleDelay      time.Duration

	// Selector policy
	SelectorPolicyPath      string
	SelectorPolicyHotReload bool

	// Persistence
	DataFile string

	// Security
	APIKeyEnabled      bool
	APIKey             string
	CORSAllowedOrigins []string
	RateLimitEnabled   bool
	RateLimitRPM       int
	TrustProxyHeaders  bool

	// Observability
	PrometheusEnabled bool
	PrometheusPort    int
	LogLevel          string
	LogPretty         bool
}

// Load reads configuration from environment variables, applying defaults
// for anything unset. Call Validate afterwards to clamp out-of-range values.
func Load() *Config {
	return &Config{
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 29527),

		Headless:       getEnvBool("HEADLESS", true),
		BrowserPath:    getEnvString("BROWSER_PATH", ""),
		UserAgent:      getEnvString("USER_AGENT", ""),
		ViewportWidth:  getEnvInt("VIEWPORT_WIDTH", 1920),
		ViewportHeight: getEnvInt("VIEWPORT_HEIGHT", 1080),
		StealthMode:    getEnvBool("STEALTH_MODE", false),

		MaxSessions:            getEnvInt("MAX_SESSIONS", 10),
		AllowUnlimitedSessions: getEnvBool("ALLOW_UNLIMITED_SESSIONS", false),
		LivenessInterval:       getEnvDuration("LIVENESS_INTERVAL", 15*time.Second),

		DefaultTimeout:   getEnvDuration("DEFAULT_TIMEOUT", 30*time.Second),
		MaxTimeout:       getEnvDuration("MAX_TIMEOUT", 60*time.Second),
		RetryAttempts:    getEnvInt("RETRY_ATTEMPTS", 3),
		RetryBackoff:     getEnvDuration("RETRY_BACKOFF", 500*time.Millisecond),
		MinContentLength: getEnvInt("MIN_CONTENT_LENGTH", 0),
		SettleDelay:      getEnvDuration("SETTLE_DELAY", 500*time.Millisecond),

		SelectorPolicyPath:      getEnvString("SELECTOR_POLICY_PATH", ""),
		SelectorPolicyHotReload: getEnvBool("SELECTOR_POLICY_HOT_RELOAD", false),

		DataFile: getEnvString("DATA_FILE", "data/user-data.json"),

		APIKeyEnabled:      getEnvBool("API_KEY_ENABLED", false),
		APIKey:             getEnvString("API_KEY", ""),
		CORSAllowedOrigins: splitAndTrim(getEnvString("CORS_ALLOWED_ORIGINS", "")),
		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 60),
		TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", false),

		PrometheusEnabled: getEnvBool("PROMETHEUS_ENABLED", false),
		PrometheusPort:    getEnvInt("PROMETHEUS_PORT", 29090),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
		LogPretty:         getEnvBool("LOG_PRETTY", true),
	}
}

// Validate checks configuration values and fixes invalid ones, logging a
// warning for each correction.
func (c *Config) Validate() {
	if c.Port < 1 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 29527")
		c.Port = 29527
	}

	if c.MaxSessions < 1 {
		log.Warn().Int("max", c.MaxSessions).Msg("Invalid max sessions, using 10")
		c.MaxSessions = 10
	} else if c.MaxSessions > 100 {
		log.Warn().
			Int("max", c.MaxSessions).
			Msg("Max sessions too high, capping at 100 (each session holds a browser page)")
		c.MaxSessions = 100
	}
	if c.AllowUnlimitedSessions {
		log.Warn().Msg("ALLOW_UNLIMITED_SESSIONS enabled - session capacity will not be enforced")
	}

	if c.ViewportWidth < 320 || c.ViewportWidth > 7680 {
		log.Warn().Int("width", c.ViewportWidth).Msg("Invalid viewport width, using 1920")
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight < 240 || c.ViewportHeight > 4320 {
		log.Warn().Int("height", c.ViewportHeight).Msg("Invalid viewport height, using 1080")
		c.ViewportHeight = 1080
	}

	if c.MaxTimeout > 60*time.Second {
		log.Warn().Dur("timeout", c.MaxTimeout).Msg("Max timeout too long, capping at 60s")
		c.MaxTimeout = 60 * time.Second
	}
	if c.MaxTimeout < time.Second {
		log.Warn().Dur("timeout", c.MaxTimeout).Msg("Max timeout too short, using 60s")
		c.MaxTimeout = 60 * time.Second
	}
	if c.DefaultTimeout > c.MaxTimeout {
		log.Warn().
			Dur("default", c.DefaultTimeout).
			Dur("max", c.MaxTimeout).
			Msg("Default timeout exceeds max timeout, clamping")
		c.DefaultTimeout = c.MaxTimeout
	}

	if c.RetryAttempts < 0 {
		log.Warn().Int("attempts", c.RetryAttempts).Msg("Invalid retry attempts, using 3")
		c.RetryAttempts = 3
	} else if c.RetryAttempts > 10 {
		log.Warn().Int("attempts", c.RetryAttempts).Msg("Retry attempts too high, capping at 10")
		c.RetryAttempts = 10
	}
	if c.MinContentLength < 0 {
		log.Warn().Int("length", c.MinContentLength).Msg("Invalid min content length, using 0")
		c.MinContentLength = 0
	}
	if c.LivenessInterval < time.Second {
		log.Warn().Dur("interval", c.LivenessInterval).Msg("Liveness interval too short, using 15s")
		c.LivenessInterval = 15 * time.Second
	}

	if c.RateLimitEnabled && c.RateLimitRPM < 1 {
		log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 60 RPM")
		c.RateLimitRPM = 60
	}

	if c.APIKeyEnabled && c.APIKey == "" {
		log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
	}

	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("CORS_ALLOWED_ORIGINS not set - cross-origin browser requests will be rejected")
	}

	if c.SelectorPolicyHotReload && c.SelectorPolicyPath == "" {
		log.Warn().Msg("SELECTOR_POLICY_HOT_RELOAD enabled but SELECTOR_POLICY_PATH not set - hot-reload disabled")
		c.SelectorPolicyHotReload = false
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if c.PrometheusEnabled && (c.PrometheusPort < 1 || c.PrometheusPort > 65535) {
		log.Warn().Int("port", c.PrometheusPort).Msg("Invalid metrics port, using 29090")
		c.PrometheusPort = 29090
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
