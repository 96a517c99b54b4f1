// Package config defines the immutable pipeline configuration and its
// environment-based loading and validation.
package config

import (
	"fmt"
	"time"
)

// Config holds the full pipeline configuration. It is read once at
// startup and treated as read-only for the lifetime of a run.
type Config struct {
	// Input
	InputPath  string // TSV (plain or .zip) with a 'cep' column
	SampleSize int    // Number of CEPs to draw from the input
	SampleSeed int64  // Seed for reproducible sampling

	// Mode
	Offline bool // Use the synthetic fetcher instead of the live API

	// Rate limiting
	MaxRequestsPerWindow int           // Admissions allowed per trailing window (<= 0 disables)
	WindowDuration       time.Duration // Length of the sliding window
	MinRequestSpacing    time.Duration // Optional minimum gap between requests (0 disables)

	// Fetching
	WorkerCount       int
	MaxAttempts       int
	BaseBackoff       time.Duration
	PerRequestTimeout time.Duration
	BaseURL           string

	// Lookup cache (optional)
	RedisAddr string // Empty disables the cache
	CacheTTL  time.Duration

	// Persistence and export
	DBPath    string
	OutputDir string
	ResetDB   bool

	// Observability
	MetricsAddr string // Empty disables the /metrics endpoint
	LogLevel    string
	LogFile     string
}

// Default returns a configuration suitable for the live ViaCEP API.
// The rate ceiling stays well under the observed service limit.
func Default() Config {
	return Config{
		InputPath:            "data/input/cep.tsv.zip",
		SampleSize:           10000,
		SampleSeed:           25,
		Offline:              false,
		MaxRequestsPerWindow: 50,
		WindowDuration:       60 * time.Second,
		MinRequestSpacing:    0,
		WorkerCount:          4,
		MaxAttempts:          3,
		BaseBackoff:          1 * time.Second,
		PerRequestTimeout:    10 * time.Second,
		BaseURL:              "https://viacep.com.br",
		RedisAddr:            "",
		CacheTTL:             24 * time.Hour,
		DBPath:               "data/output/base_enderecos.db",
		OutputDir:            "data/output",
		ResetDB:              true,
		MetricsAddr:          "",
		LogLevel:             "info",
		LogFile:              "data/output/pipeline_diagnosis.log",
	}
}

// FromEnv loads configuration from environment variables on top of the
// defaults. Unset or malformed variables keep their default value.
func FromEnv() Config {
	cfg := Default()

	cfg.InputPath = String("CEP_INPUT_PATH", cfg.InputPath)
	cfg.SampleSize = Int("CEP_SAMPLE_SIZE", cfg.SampleSize)
	cfg.SampleSeed = Int64("CEP_SAMPLE_SEED", cfg.SampleSeed)
	cfg.Offline = Bool("CEP_OFFLINE", cfg.Offline)

	cfg.MaxRequestsPerWindow = Int("CEP_MAX_REQUESTS_PER_WINDOW", cfg.MaxRequestsPerWindow)
	cfg.WindowDuration = Duration("CEP_WINDOW_DURATION", cfg.WindowDuration)
	cfg.MinRequestSpacing = Duration("CEP_MIN_REQUEST_SPACING", cfg.MinRequestSpacing)

	cfg.WorkerCount = Int("CEP_WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxAttempts = Int("CEP_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.BaseBackoff = Duration("CEP_BASE_BACKOFF", cfg.BaseBackoff)
	cfg.PerRequestTimeout = Duration("CEP_REQUEST_TIMEOUT", cfg.PerRequestTimeout)
	cfg.BaseURL = String("CEP_BASE_URL", cfg.BaseURL)

	cfg.RedisAddr = String("CEP_REDIS_ADDR", cfg.RedisAddr)
	cfg.CacheTTL = Duration("CEP_CACHE_TTL", cfg.CacheTTL)

	cfg.DBPath = String("CEP_DB_PATH", cfg.DBPath)
	cfg.OutputDir = String("CEP_OUTPUT_DIR", cfg.OutputDir)
	cfg.ResetDB = Bool("CEP_RESET_DB", cfg.ResetDB)

	cfg.MetricsAddr = String("CEP_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = String("CEP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = String("CEP_LOG_FILE", cfg.LogFile)

	// Offline mode contacts no external service, so a much larger pool
	// is valid. Lift the ceiling unless explicitly configured.
	if cfg.Offline {
		if String("CEP_WORKER_COUNT", "") == "" {
			cfg.WorkerCount = 500
		}
		if String("CEP_MAX_REQUESTS_PER_WINDOW", "") == "" {
			cfg.MaxRequestsPerWindow = 0
		}
	}

	return cfg
}

// Validate checks the configuration. Configuration errors are the only
// fatal condition of a run and abort before any worker starts.
func (c Config) Validate() error {
	if c.InputPath == "" && !c.Offline {
		return fmt.Errorf("input path is required")
	}

	if c.SampleSize <= 0 {
		return fmt.Errorf("sample size must be positive (got %d)", c.SampleSize)
	}

	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive (got %d)", c.WorkerCount)
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive (got %d)", c.MaxAttempts)
	}

	if c.MaxRequestsPerWindow > 0 && c.WindowDuration <= 0 {
		return fmt.Errorf("window duration must be positive when a rate ceiling is set")
	}

	if c.PerRequestTimeout <= 0 {
		return fmt.Errorf("per-request timeout must be positive")
	}

	if !c.Offline && c.BaseURL == "" {
		return fmt.Errorf("base URL is required in live mode")
	}

	return nil
}
