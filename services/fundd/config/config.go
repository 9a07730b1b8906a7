package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fundchain/crypto"
	"fundchain/native/fund"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for fundd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	Logging       LoggingConfig   `yaml:"logging"`
	Storage       StorageConfig   `yaml:"storage"`
	Journal       JournalConfig   `yaml:"journal"`
	RegistryPath  string          `yaml:"registry"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Quota         QuotaConfig     `yaml:"quota"`
	Crank         CrankConfig     `yaml:"crank"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	PausedModules []string        `yaml:"paused_modules"`
}

// LoggingConfig selects the level and optional rotated log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StorageConfig selects the key/value backend holding fund state.
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	AllowMigrate bool   `yaml:"allow_migrate"`
}

// JournalConfig points at the SQL event journal.
type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

// OracleConfig tunes price aggregation and the engine's deferred pricing.
type OracleConfig struct {
	Interval  Duration `yaml:"interval"`
	MaxAge    Duration `yaml:"max_age"`
	MinFeeds  int      `yaml:"min_feeds"`
	CacheSize int      `yaml:"cache_size"`
	Band      string   `yaml:"band"`
	Sources   []Source `yaml:"sources"`
	Pairs     []Pair   `yaml:"pairs"`
}

// Source describes an upstream price feed. Static sources serve Prices
// directly; http sources fetch Endpoint.
type Source struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint"`
	APIKey   string            `yaml:"api_key"`
	Prices   map[string]string `yaml:"prices"`
}

// Pair identifies a sell/buy token pair to aggregate.
type Pair struct {
	Sell string `yaml:"sell"`
	Buy  string `yaml:"buy"`
}

// AuthConfig configures bearer JWT verification.
type AuthConfig struct {
	HMACSecret    string   `yaml:"hmac_secret"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	ClockSkew     Duration `yaml:"clock_skew"`
	AnonymousRead bool     `yaml:"anonymous_read"`
}

// RateLimitConfig bounds request rates per caller.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// QuotaConfig limits command volume per caller and epoch.
type QuotaConfig struct {
	MaxRequests uint32   `yaml:"max_requests"`
	MaxVolume   uint64   `yaml:"max_volume"`
	Epoch       Duration `yaml:"epoch"`
}

// CrankConfig schedules keeper jobs. The keeper is enabled by Identity; an
// empty Funds list serves every registered fund.
type CrankConfig struct {
	Identity           string   `yaml:"identity"`
	PokeSchedule       string   `yaml:"poke_schedule"`
	DistributeSchedule string   `yaml:"distribute_schedule"`
	Funds              []string `yaml:"funds"`
}

// TelemetryConfig toggles OTLP export.
type TelemetryConfig struct {
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Option adjusts configuration after decoding.
type Option func(*Config)

// WithListenAddress overrides the listen address, typically from a flag.
func WithListenAddress(addr string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(addr) != "" {
			cfg.ListenAddress = strings.TrimSpace(addr)
		}
	}
}

// WithEnvironment sets the deployment environment when the file omits it.
func WithEnvironment(env string) Option {
	return func(cfg *Config) {
		if cfg.Environment == "" {
			cfg.Environment = strings.TrimSpace(env)
		}
	}
}

// Load reads configuration from the supplied path.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "leveldb"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend != "memory" {
		cfg.Storage.Path = "/var/data/fundd"
	}
	if cfg.Journal.DSN == "" {
		cfg.Journal.DSN = "file:/var/data/fundd-journal.sqlite?_busy_timeout=5000&_journal_mode=WAL"
	}
	if cfg.Oracle.Interval.Duration == 0 {
		cfg.Oracle.Interval.Duration = 30 * time.Second
	}
	if cfg.Oracle.MaxAge.Duration == 0 {
		cfg.Oracle.MaxAge.Duration = 5 * time.Minute
	}
	if cfg.Oracle.MinFeeds <= 0 {
		cfg.Oracle.MinFeeds = 1
	}
	if cfg.Oracle.CacheSize <= 0 {
		cfg.Oracle.CacheSize = 256
	}
	if cfg.Oracle.Band == "" {
		cfg.Oracle.Band = "0.05"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 50
	}
	if cfg.Quota.Epoch.Duration == 0 {
		cfg.Quota.Epoch.Duration = time.Hour
	}
	if cfg.Crank.PokeSchedule == "" {
		cfg.Crank.PokeSchedule = "@every 1h"
	}
	if cfg.Crank.DistributeSchedule == "" {
		cfg.Crank.DistributeSchedule = "@daily"
	}
}

func validate(cfg Config) error {
	switch cfg.Storage.Backend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmac_secret must be configured")
	}
	if strings.TrimSpace(cfg.RegistryPath) == "" {
		return fmt.Errorf("registry path must be configured")
	}
	band, err := fund.ParseD18(cfg.Oracle.Band)
	if err != nil {
		return fmt.Errorf("oracle.band: %w", err)
	}
	if !band.IsUint64() || band.Uint64() >= fund.ScaledOne {
		return fmt.Errorf("oracle.band must be below 1")
	}
	for i, pair := range cfg.Oracle.Pairs {
		if _, err := crypto.ParseAddress(pair.Sell); err != nil {
			return fmt.Errorf("oracle.pairs[%d].sell: %w", i, err)
		}
		if _, err := crypto.ParseAddress(pair.Buy); err != nil {
			return fmt.Errorf("oracle.pairs[%d].buy: %w", i, err)
		}
	}
	if len(cfg.Oracle.Pairs) > 0 && len(cfg.Oracle.Sources) == 0 {
		return fmt.Errorf("at least one oracle source must be configured")
	}
	// The keeper runs whenever an identity is set; funds narrows it.
	if cfg.Crank.Identity != "" || len(cfg.Crank.Funds) > 0 {
		if _, err := crypto.ParseAddress(cfg.Crank.Identity); err != nil {
			return fmt.Errorf("crank.identity: %w", err)
		}
	}
	for i, raw := range cfg.Crank.Funds {
		if _, err := crypto.ParseAddress(raw); err != nil {
			return fmt.Errorf("crank.funds[%d]: %w", i, err)
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}
