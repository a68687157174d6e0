package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"HOST", "PORT", "HEADLESS", "BROWSER_PATH", "USER_AGENT",
		"VIEWPORT_WIDTH", "VIEWPORT_HEIGHT", "STEALTH_MODE",
		"MAX_SESSIONS", "ALLOW_UNLIMITED_SESSIONS", "LIVENESS_INTERVAL",
		"DEFAULT_TIMEOUT", "MAX_TIMEOUT", "RETRY_ATTEMPTS", "RETRY_BACKOFF",
		"MIN_CONTENT_LENGTH", "SETTLE_DELAY",
		"SELECTOR_POLICY_PATH", "SELECTOR_POLICY_HOT_RELOAD",
		"DATA_FILE",
		"API_KEY_ENABLED", "API_KEY", "CORS_ALLOWED_ORIGINS",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "TRUST_PROXY_HEADERS",
		"PROMETHEUS_ENABLED", "PROMETHEUS_PORT", "LOG_LEVEL", "LOG_PRETTY",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	// Server defaults
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 29527 {
		t.Errorf("Expected default port 29527, got %d", cfg.Port)
	}

	// Browser defaults
	if !cfg.Headless {
		t.Error("Expected Headless to be true by default")
	}
	if cfg.BrowserPath != "" {
		t.Errorf("Expected empty BrowserPath by default, got %q", cfg.BrowserPath)
	}
	if cfg.ViewportWidth != 1920 || cfg.ViewportHeight != 1080 {
		t.Errorf("Expected 1920x1080 viewport, got %dx%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}

	// Pool defaults
	if cfg.MaxSessions != 10 {
		t.Errorf("Expected default max sessions 10, got %d", cfg.MaxSessions)
	}
	if cfg.AllowUnlimitedSessions {
		t.Error("Expected AllowUnlimitedSessions to be false by default")
	}
	if cfg.LivenessInterval != 15*time.Second {
		t.Errorf("Expected default liveness interval 15s, got %v", cfg.LivenessInterval)
	}

	// Extraction defaults
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.DefaultTimeout)
	}
	if cfg.MaxTimeout != 60*time.Second {
		t.Errorf("Expected max timeout 60s, got %v", cfg.MaxTimeout)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("Expected default retry attempts 3, got %d", cfg.RetryAttempts)
	}
	if cfg.RetryBackoff != 500*time.Millisecond {
		t.Errorf("Expected default retry backoff 500ms, got %v", cfg.RetryBackoff)
	}

	// Persistence defaults
	if cfg.DataFile != "data/user-data.json" {
		t.Errorf("Expected default data file 'data/user-data.json', got %q", cfg.DataFile)
	}

	// Security defaults
	if cfg.APIKeyEnabled {
		t.Error("Expected APIKeyEnabled to be false by default")
	}
	if cfg.RateLimitEnabled {
		t.Error("Expected RateLimitEnabled to be false by default")
	}
	if cfg.RateLimitRPM != 60 {
		t.Errorf("Expected default rate limit 60 RPM, got %d", cfg.RateLimitRPM)
	}

	// Observability defaults
	if cfg.PrometheusEnabled {
		t.Error("Expected PrometheusEnabled to be false by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_SESSIONS", "25")
	t.Setenv("DEFAULT_TIMEOUT", "10s")
	t.Setenv("HEADLESS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.MaxSessions != 25 {
		t.Errorf("MaxSessions = %d, want 25", cfg.MaxSessions)
	}
	if cfg.DefaultTimeout != 10*time.Second {
		t.Errorf("DefaultTimeout = %v, want 10s", cfg.DefaultTimeout)
	}
	if cfg.Headless {
		t.Error("Headless = true, want false")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("HEADLESS", "sometimes")
	t.Setenv("DEFAULT_TIMEOUT", "-5s")

	cfg := Load()

	if cfg.Port != 29527 {
		t.Errorf("Port = %d, want default for unparseable value", cfg.Port)
	}
	if !cfg.Headless {
		t.Error("Headless should fall back to default true")
	}
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, negative durations must fall back", cfg.DefaultTimeout)
	}
}

func TestValidate_Clamps(t *testing.T) {
	cfg := &Config{
		Port:             -1,
		MaxSessions:      500,
		ViewportWidth:    10,
		ViewportHeight:   100000,
		DefaultTimeout:   5 * time.Minute,
		MaxTimeout:       10 * time.Minute,
		RetryAttempts:    50,
		LivenessInterval: 100 * time.Millisecond,
		LogLevel:         "verbose",
	}
	cfg.Validate()

	if cfg.Port != 29527 {
		t.Errorf("Port = %d, want 29527", cfg.Port)
	}
	if cfg.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want cap of 100", cfg.MaxSessions)
	}
	if cfg.ViewportWidth != 1920 || cfg.ViewportHeight != 1080 {
		t.Errorf("viewport = %dx%d, want defaults", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.MaxTimeout != 60*time.Second {
		t.Errorf("MaxTimeout = %v, want cap of 60s", cfg.MaxTimeout)
	}
	if cfg.DefaultTimeout != 60*time.Second {
		t.Errorf("DefaultTimeout = %v, must not exceed MaxTimeout", cfg.DefaultTimeout)
	}
	if cfg.RetryAttempts != 10 {
		t.Errorf("RetryAttempts = %d, want cap of 10", cfg.RetryAttempts)
	}
	if cfg.LivenessInterval != 15*time.Second {
		t.Errorf("LivenessInterval = %v, want 15s", cfg.LivenessInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestValidate_HotReloadRequiresPath(t *testing.T) {
	cfg := &Config{
		Port:                    29527,
		MaxSessions:             10,
		ViewportWidth:           1920,
		ViewportHeight:          1080,
		DefaultTimeout:          30 * time.Second,
		MaxTimeout:              60 * time.Second,
		RetryAttempts:           3,
		LivenessInterval:        15 * time.Second,
		LogLevel:                "info",
		SelectorPolicyHotReload: true,
	}
	cfg.Validate()

	if cfg.SelectorPolicyHotReload {
		t.Error("hot-reload must be disabled when no policy path is set")
	}
}
