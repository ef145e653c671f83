// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication (bearer JWTs are issued elsewhere, HS256)
	JWTSecret string
	JWTIssuer string

	// CORS
	CORSOrigins []string

	// Upstream generative model
	UpstreamAPIKey         string
	UpstreamBaseURL        string
	UpstreamModel          string
	UpstreamMaxAttempts    int
	UpstreamBaseDelay      time.Duration
	UpstreamAttemptTimeout time.Duration
	UpstreamSearchTool     bool // ask the model to ground answers with web search
	UpstreamQuotaPerMinute int
	UpstreamQuotaPerDay    int
	UpstreamQuotaTimezone  string // IANA zone used for the calendar-day window

	// Per-user search limits
	SearchLimit       int           // workflow-level ceiling
	SearchLimitWindow time.Duration // rolling window started by the first counted search
	SearchBurstLimit  int           // request-level ceiling checked before the workflow
	SearchBurstWindow time.Duration
	SearchCacheWindow time.Duration // how far back an identical search is reused
	SearchRateLimit   int           // general per-user requests per minute

	// Redis search cache (optional)
	RedisURL string

	// Page hints for URL resolution
	PageHintsEnabled bool
	PageHintsTimeout time.Duration

	// Object Storage (Tigris/S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3 for Tigris
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string // Bucket name (one per environment)
	StorageRegion    string // Region (auto for Tigris)

	// Tracking
	TrackRefreshInterval time.Duration // How often a tracked product is re-resolved
	TrackMaxURLs         int

	// Worker
	WorkerPollInterval time.Duration
	WorkerConcurrency  int
	WorkerBatchSize    int

	// Cleanup
	CleanupEnabled       bool
	CleanupMaxAge        time.Duration // Max age of cached searches to keep (default 30 days)
	CleanupArchiveMaxAge time.Duration // Max age of archived searches in storage (default 90 days)
	CleanupInterval      time.Duration

	// Idle shutdown settings (for scale-to-zero on Fly.io)
	IdleTimeout time.Duration // Time before shutting down when idle (0 = disabled)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:pricewatch.db?_journal=WAL&_timeout=5000"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", ""),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		UpstreamAPIKey:         getEnvWithFallback("GEMINI_API_KEY", "UPSTREAM_API_KEY", ""),
		UpstreamBaseURL:        getEnv("UPSTREAM_BASE_URL", "https://generativelanguage.googleapis.com"),
		UpstreamModel:          getEnv("UPSTREAM_MODEL", "gemini-2.0-flash"),
		UpstreamMaxAttempts:    getEnvInt("UPSTREAM_MAX_ATTEMPTS", 3),
		UpstreamBaseDelay:      getEnvDuration("UPSTREAM_BASE_DELAY", time.Second),
		UpstreamAttemptTimeout: getEnvDuration("UPSTREAM_ATTEMPT_TIMEOUT", 30*time.Second),
		UpstreamSearchTool:     getEnvBool("UPSTREAM_SEARCH_TOOL", true),
		UpstreamQuotaPerMinute: getEnvInt("UPSTREAM_QUOTA_PER_MINUTE", 15),
		UpstreamQuotaPerDay:    getEnvInt("UPSTREAM_QUOTA_PER_DAY", 1500),
		UpstreamQuotaTimezone:  getEnv("UPSTREAM_QUOTA_TIMEZONE", "UTC"),

		SearchLimit:       getEnvInt("SEARCH_LIMIT", 100),
		SearchLimitWindow: getEnvDuration("SEARCH_LIMIT_WINDOW", 7*24*time.Hour),
		SearchBurstLimit:  getEnvInt("SEARCH_BURST_LIMIT", 3),
		SearchBurstWindow: getEnvDuration("SEARCH_BURST_WINDOW", 24*time.Hour),
		SearchCacheWindow: getEnvDuration("SEARCH_CACHE_WINDOW", 3*time.Hour),
		SearchRateLimit:   getEnvInt("SEARCH_RATE_LIMIT", 30),

		RedisURL: getEnv("REDIS_URL", ""),

		PageHintsEnabled: getEnvBool("PAGE_HINTS_ENABLED", false),
		PageHintsTimeout: getEnvDuration("PAGE_HINTS_TIMEOUT", 10*time.Second),

		// Object Storage (Tigris/S3-compatible) - uses Fly's standard env vars
		// BUCKET_NAME is set automatically by `fly storage create`
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		TrackRefreshInterval: getEnvDuration("TRACK_REFRESH_INTERVAL", 6*time.Hour),
		TrackMaxURLs:         getEnvInt("TRACK_MAX_URLS", 10),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Minute),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 1),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 5),

		CleanupEnabled:       getEnvBool("CLEANUP_ENABLED", true),
		CleanupMaxAge:        getEnvDuration("CLEANUP_MAX_AGE", 30*24*time.Hour),
		CleanupArchiveMaxAge: getEnvDuration("CLEANUP_ARCHIVE_MAX_AGE", 90*24*time.Hour),
		CleanupInterval:      getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	// Enable storage if bucket is configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.UpstreamMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("UPSTREAM_MAX_ATTEMPTS must be at least 1, got %d", c.UpstreamMaxAttempts))
	}
	if c.UpstreamQuotaPerMinute < 1 || c.UpstreamQuotaPerDay < 1 {
		errs = append(errs, errors.New("upstream quotas must be positive"))
	}
	if c.SearchLimit < 1 || c.SearchBurstLimit < 1 {
		errs = append(errs, errors.New("search limits must be positive"))
	}
	if _, err := time.LoadLocation(c.UpstreamQuotaTimezone); err != nil {
		errs = append(errs, fmt.Errorf("UPSTREAM_QUOTA_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// UpstreamEnabled returns true if an upstream API key is configured.
func (c *Config) UpstreamEnabled() bool {
	return c.UpstreamAPIKey != ""
}

// CacheEnabled returns true if a Redis search cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != ""
}

// QuotaLocation returns the location the upstream day window is measured in.
func (c *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(c.UpstreamQuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
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

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
