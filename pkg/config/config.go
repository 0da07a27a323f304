// Package config loads the gatepass service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation.
const (
	DefaultAddress            = ":8000"
	DefaultPoolSize           = 2
	DefaultMaxConcurrent      = 3
	DefaultCacheTTL           = 30 * time.Minute
	DefaultCacheCapacity      = 100
	DefaultSolveTimeout       = 60 * time.Second
	MinSolveTimeout           = 10 * time.Second
	MaxSolveTimeout           = 300 * time.Second
	DefaultMaxRetries         = 0
	DefaultPollInterval       = 750 * time.Millisecond
	DefaultPollJitter         = 250 * time.Millisecond
	DefaultPoolAcquireTimeout = 10 * time.Second
)

// Config is the complete gatepass configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Pool    PoolConfig    `yaml:"pool"`
	Cache   CacheConfig   `yaml:"cache"`
	Solver  SolverConfig  `yaml:"solver"`
	Storage StorageConfig `yaml:"storage"`
	Proxies ProxyConfig   `yaml:"proxies"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address       string `yaml:"address"`
	RequireAPIKey bool   `yaml:"require_api_key"`
	MaxConcurrent int64  `yaml:"max_concurrent"`
}

// BrowserConfig configures the session engine.
type BrowserConfig struct {
	Headless  bool   `yaml:"headless"`
	ExecPath  string `yaml:"exec_path"`
	UserAgent string `yaml:"user_agent"`
}

// PoolConfig configures the session pool.
type PoolConfig struct {
	Size           int           `yaml:"size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	WarmupOnStart  bool          `yaml:"warmup_on_start"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// SolverConfig configures the clearance waiter.
type SolverConfig struct {
	CookieName   string        `yaml:"cookie_name"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollJitter   time.Duration `yaml:"poll_jitter"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ProxyConfig configures channel rotation.
type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	List    string `yaml:"list"` // newline-separated
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:       DefaultAddress,
			MaxConcurrent: DefaultMaxConcurrent,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Pool: PoolConfig{
			Size:           DefaultPoolSize,
			AcquireTimeout: DefaultPoolAcquireTimeout,
			WarmupOnStart:  true,
		},
		Cache: CacheConfig{
			TTL:      DefaultCacheTTL,
			Capacity: DefaultCacheCapacity,
		},
		Solver: SolverConfig{
			CookieName:   "cf_clearance",
			PollInterval: DefaultPollInterval,
			PollJitter:   DefaultPollJitter,
			Timeout:      DefaultSolveTimeout,
			MaxRetries:   DefaultMaxRetries,
		},
		Storage: StorageConfig{
			Path: filepath.Join("data", "gatepass.db"),
		},
	}
}

// Load loads configuration from ./gatepass.yaml when present, otherwise
// defaults, then applies environment overrides and validates.
func Load() (*Config, error) {
	return LoadFromPath("gatepass.yaml")
}

// LoadFromPath loads configuration from a specific file path. A missing
// file is not an error; defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies GATEPASS_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEPASS_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v, ok := envInt64("GATEPASS_MAX_CONCURRENT"); ok {
		cfg.Server.MaxConcurrent = v
	}
	if v, ok := envBool("GATEPASS_REQUIRE_API_KEY"); ok {
		cfg.Server.RequireAPIKey = v
	}
	if v, ok := envBool("GATEPASS_HEADLESS"); ok {
		cfg.Browser.Headless = v
	}
	if v := os.Getenv("GATEPASS_CHROME_PATH"); v != "" {
		cfg.Browser.ExecPath = v
	}
	if v, ok := envInt64("GATEPASS_POOL_SIZE"); ok {
		cfg.Pool.Size = int(v)
	}
	if v, ok := envDuration("GATEPASS_CACHE_TTL"); ok {
		cfg.Cache.TTL = v
	}
	if v, ok := envInt64("GATEPASS_CACHE_CAPACITY"); ok {
		cfg.Cache.Capacity = int(v)
	}
	if v, ok := envDuration("GATEPASS_SOLVE_TIMEOUT"); ok {
		cfg.Solver.Timeout = v
	}
	if v, ok := envInt64("GATEPASS_MAX_RETRIES"); ok {
		cfg.Solver.MaxRetries = int(v)
	}
	if v := os.Getenv("GATEPASS_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GATEPASS_PROXY_LIST"); v != "" {
		cfg.Proxies.Enabled = true
		cfg.Proxies.List = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be positive, got %d", c.Pool.Size)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Solver.Timeout < MinSolveTimeout || c.Solver.Timeout > MaxSolveTimeout {
		return fmt.Errorf("solver.timeout must be between %s and %s, got %s",
			MinSolveTimeout, MaxSolveTimeout, c.Solver.Timeout)
	}
	if c.Solver.MaxRetries < 0 {
		return fmt.Errorf("solver.max_retries must not be negative, got %d", c.Solver.MaxRetries)
	}
	return nil
}

// ClampTimeout bounds a caller-supplied attempt timeout to the allowed
// range, substituting the configured default for zero.
func (c *Config) ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return c.Solver.Timeout
	}
	if d < MinSolveTimeout {
		return MinSolveTimeout
	}
	if d > MaxSolveTimeout {
		return MaxSolveTimeout
	}
	return d
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
