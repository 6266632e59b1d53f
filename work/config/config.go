package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Config holds all application configuration values for the stream checker service.
// It covers probe timeouts and retries, batch orchestration limits, deep validation
// sampling, fallback selection, continuous monitoring and the cache-busting rewriter.
type Config struct {
	BaseURL             string        `json:"baseURL"`             // Base URL the HTTP API is served under
	ListenPort          int           `json:"listenPort"`          // TCP port for the HTTP API
	Debug               bool          `json:"debug"`               // Enable debug logging
	LogLevel            string        `json:"logLevel"`            // Log level: DEBUG, INFO, WARN, ERROR
	ObfuscateUrls       bool          `json:"obfuscateUrls"`       // Obfuscate stream URLs in logs
	UserAgent           string        `json:"userAgent"`           // HTTP User-Agent header for outbound probes
	ReqOrigin           string        `json:"reqOrigin"`           // HTTP Origin header for outbound probes
	ReqReferrer         string        `json:"reqReferrer"`         // HTTP Referer header for outbound probes
	CheckTimeout        time.Duration `json:"checkTimeout"`        // Base per-attempt probe timeout
	MaxRetries          int           `json:"maxRetries"`          // Maximum probe retries before a final failure
	WorkerThreads       int           `json:"workerThreads"`       // Base worker pool size for batch validation
	BatchSize           int           `json:"batchSize"`           // Page size for paginated batch runs
	PauseBetweenBatches time.Duration `json:"pauseBetweenBatches"` // Delay inserted between consecutive batches
	RequestsPerSecond   int           `json:"requestsPerSecond"`   // Outbound probe rate limit (0 = unlimited)
	SampleMaxBytes      int64         `json:"sampleMaxBytes"`      // Hard cap on downloaded sample size
	SampleDuration      time.Duration `json:"sampleDuration"`      // Wall-clock cap on sample download
	ResultCacheTTL      time.Duration `json:"resultCacheTTL"`      // TTL for cached deep validation results
	ResultCacheSize     int           `json:"resultCacheSize"`     // Max entries in the validation result cache
	ProviderPatterns    []string      `json:"providerPatterns"`    // Host regexes eligible for cache-busting rewrite
	UIDPrefix           string        `json:"uidPrefix"`           // Prefix for generated cache-busting UIDs
	UIDCacheExpiry      time.Duration `json:"uidCacheExpiry"`      // How long a generated UID stays pinned per channel
	MonitorInterval     time.Duration `json:"monitorInterval"`     // Re-validation interval for monitored streams
	ConsecutiveFailures int           `json:"consecutiveFailures"` // Consecutive failure threshold for alerts
	FailureRate         float64       `json:"failureRate"`         // Failure rate threshold for alerts (0..1)
	AlertCooldown       time.Duration `json:"alertCooldown"`       // Minimum gap between alerts per session
	MaxFallbackAttempts int           `json:"maxFallbackAttempts"` // Candidate cap for fallback selection
	ConversionEnabled   bool          `json:"conversionEnabled"`   // Whether HTTPS->HTTP conversion advice runs
	DatabasePath        string        `json:"databasePath"`        // SQLite database path for the channel repository
}

// ConfigFile is the on-disk JSON shape. Duration fields are strings (e.g. "30s",
// "15m") and parsed into time.Duration values during load.
type ConfigFile struct {
	BaseURL             string   `json:"baseURL"`
	ListenPort          int      `json:"listenPort"`
	Debug               bool     `json:"debug"`
	LogLevel            string   `json:"logLevel"`
	ObfuscateUrls       bool     `json:"obfuscateUrls"`
	UserAgent           string   `json:"userAgent"`
	ReqOrigin           string   `json:"reqOrigin"`
	ReqReferrer         string   `json:"reqReferrer"`
	CheckTimeout        string   `json:"checkTimeout"`
	MaxRetries          int      `json:"maxRetries"`
	WorkerThreads       int      `json:"workerThreads"`
	BatchSize           int      `json:"batchSize"`
	PauseBetweenBatches string   `json:"pauseBetweenBatches"`
	RequestsPerSecond   int      `json:"requestsPerSecond"`
	SampleMaxBytes      int64    `json:"sampleMaxBytes"`
	SampleDuration      string   `json:"sampleDuration"`
	ResultCacheTTL      string   `json:"resultCacheTTL"`
	ResultCacheSize     int      `json:"resultCacheSize"`
	ProviderPatterns    []string `json:"providerPatterns"`
	UIDPrefix           string   `json:"uidPrefix"`
	UIDCacheExpiry      string   `json:"uidCacheExpiry"`
	MonitorInterval     string   `json:"monitorInterval"`
	ConsecutiveFailures int      `json:"consecutiveFailures"`
	FailureRate         float64  `json:"failureRate"`
	AlertCooldown       string   `json:"alertCooldown"`
	MaxFallbackAttempts int      `json:"maxFallbackAttempts"`
	ConversionEnabled   bool     `json:"conversionEnabled"`
	DatabasePath        string   `json:"databasePath"`
}

var (
	configCache *Config
	configMutex sync.RWMutex
)

// DefaultConfigPath is where LoadConfig looks unless STREAMCHECK_CONFIG overrides it.
const DefaultConfigPath = "/settings/config.json"

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Attempts to load from DefaultConfigPath (or $STREAMCHECK_CONFIG).
//   - Falls back to default config if file is missing or invalid.
//   - Runs validation to ensure safe defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := DefaultConfigPath
	if env := os.Getenv("STREAMCHECK_CONFIG"); env != "" {
		configPath = env
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		cfg = Default()
	}

	cfg.Validate()
	configCache = cfg
	return configCache
}

// ResetCache drops the cached configuration so the next LoadConfig re-reads the file.
func ResetCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// LoadFromFile reads and parses a configuration file into a validated Config.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := Default()
	cfg.BaseURL = file.BaseURL
	if file.ListenPort > 0 {
		cfg.ListenPort = file.ListenPort
	}
	cfg.Debug = file.Debug
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	cfg.ObfuscateUrls = file.ObfuscateUrls
	if file.UserAgent != "" {
		cfg.UserAgent = file.UserAgent
	}
	cfg.ReqOrigin = file.ReqOrigin
	cfg.ReqReferrer = file.ReqReferrer
	if file.MaxRetries > 0 {
		cfg.MaxRetries = file.MaxRetries
	}
	if file.WorkerThreads > 0 {
		cfg.WorkerThreads = file.WorkerThreads
	}
	if file.BatchSize > 0 {
		cfg.BatchSize = file.BatchSize
	}
	if file.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = file.RequestsPerSecond
	}
	if file.SampleMaxBytes > 0 {
		cfg.SampleMaxBytes = file.SampleMaxBytes
	}
	if file.ResultCacheSize > 0 {
		cfg.ResultCacheSize = file.ResultCacheSize
	}
	if len(file.ProviderPatterns) > 0 {
		cfg.ProviderPatterns = file.ProviderPatterns
	}
	if file.UIDPrefix != "" {
		cfg.UIDPrefix = file.UIDPrefix
	}
	if file.ConsecutiveFailures > 0 {
		cfg.ConsecutiveFailures = file.ConsecutiveFailures
	}
	if file.FailureRate > 0 {
		cfg.FailureRate = file.FailureRate
	}
	if file.MaxFallbackAttempts > 0 {
		cfg.MaxFallbackAttempts = file.MaxFallbackAttempts
	}
	cfg.ConversionEnabled = file.ConversionEnabled
	if file.DatabasePath != "" {
		cfg.DatabasePath = file.DatabasePath
	}

	parseDuration(&cfg.CheckTimeout, file.CheckTimeout)
	parseDuration(&cfg.PauseBetweenBatches, file.PauseBetweenBatches)
	parseDuration(&cfg.SampleDuration, file.SampleDuration)
	parseDuration(&cfg.ResultCacheTTL, file.ResultCacheTTL)
	parseDuration(&cfg.UIDCacheExpiry, file.UIDCacheExpiry)
	parseDuration(&cfg.MonitorInterval, file.MonitorInterval)
	parseDuration(&cfg.AlertCooldown, file.AlertCooldown)

	return cfg, nil
}

// parseDuration overwrites dst only when raw is a well-formed duration string.
func parseDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		*dst = d
	}
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		BaseURL:             "http://localhost:7070",
		ListenPort:          7070,
		LogLevel:            "INFO",
		UserAgent:           "streamcheck/1.0",
		CheckTimeout:        15 * time.Second,
		MaxRetries:          3,
		WorkerThreads:       10,
		BatchSize:           100,
		PauseBetweenBatches: 2 * time.Second,
		SampleMaxBytes:      1024 * 1024,
		SampleDuration:      10 * time.Second,
		ResultCacheTTL:      5 * time.Minute,
		ResultCacheSize:     10000,
		UIDPrefix:           "sc",
		UIDCacheExpiry:      20 * time.Minute,
		MonitorInterval:     15 * time.Minute,
		ConsecutiveFailures: 3,
		FailureRate:         0.5,
		AlertCooldown:       5 * time.Minute,
		MaxFallbackAttempts: 5,
		ConversionEnabled:   true,
		DatabasePath:        "/settings/streamcheck.db",
	}
}

// Validate enforces safe minimums and the cross-field invariant between the UID
// cache expiry and the monitoring interval. A UID that rotates faster than the
// monitor re-checks would make the same stream look like a different URL on every
// pass, so the expiry is pushed above the interval when the file disagrees.
func (c *Config) Validate() {
	if c.CheckTimeout < time.Second {
		c.CheckTimeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 3
	}
	if c.WorkerThreads < 1 {
		c.WorkerThreads = 10
	}
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	if c.PauseBetweenBatches < 100*time.Millisecond {
		c.PauseBetweenBatches = 100 * time.Millisecond
	}
	if c.SampleMaxBytes < 1024 {
		c.SampleMaxBytes = 1024 * 1024
	}
	if c.SampleDuration < time.Second {
		c.SampleDuration = 10 * time.Second
	}
	if c.ResultCacheSize < 1 {
		c.ResultCacheSize = 10000
	}
	if c.ConsecutiveFailures < 1 {
		c.ConsecutiveFailures = 3
	}
	if c.FailureRate <= 0 || c.FailureRate > 1 {
		c.FailureRate = 0.5
	}
	if c.AlertCooldown < time.Minute {
		c.AlertCooldown = 5 * time.Minute
	}
	if c.MaxFallbackAttempts < 1 {
		c.MaxFallbackAttempts = 5
	}
	if c.MonitorInterval < time.Minute {
		c.MonitorInterval = 15 * time.Minute
	}

	// UID expiry must outlive the monitoring interval (see doc comment above)
	if c.UIDCacheExpiry <= c.MonitorInterval {
		c.UIDCacheExpiry = c.MonitorInterval + 5*time.Minute
	}
}
