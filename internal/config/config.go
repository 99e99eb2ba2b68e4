// Package config loads and validates acquisition configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/nidus-scraper/internal/logging"
	"github.com/JakeFAU/nidus-scraper/internal/retry"
	"github.com/JakeFAU/nidus-scraper/internal/sources"
	"github.com/JakeFAU/nidus-scraper/internal/storage/postgres"
)

// EnvPrefix namespaces environment overrides, e.g. NIDUS_DATA_DIR.
const EnvPrefix = "NIDUS"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	DataDir      string                  `mapstructure:"data_dir"`
	ManifestPath string                  `mapstructure:"manifest_path"`
	Crawl        CrawlConfig             `mapstructure:"crawl"`
	Logging      logging.Options         `mapstructure:"logging"`
	HTTP         HTTPConfig              `mapstructure:"http"`
	Retry        RetryConfig             `mapstructure:"retry"`
	GitHub       sources.GitHubConfig    `mapstructure:"github"`
	Vendors      sources.VendorsConfig   `mapstructure:"vendors"`
	Standards    sources.StandardsConfig `mapstructure:"standards"`
	Pages        sources.PagesConfig     `mapstructure:"pages"`
	Headless     HeadlessConfig          `mapstructure:"headless"`
	Storage      StorageConfig           `mapstructure:"storage"`
	DB           postgres.Config         `mapstructure:"db"`
	Metrics      MetricsConfig           `mapstructure:"metrics"`
}

// CrawlConfig selects which sources run and how wide.
type CrawlConfig struct {
	Sources []string `mapstructure:"sources"`
	// Workers overrides every source's worker count when > 0.
	Workers int `mapstructure:"workers"`
}

// HTTPConfig configures the fetch capability.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// RetryConfig configures the backoff retrier.
type RetryConfig struct {
	Attempts    int `mapstructure:"attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
}

// HeadlessConfig configures the render-to-PDF subsystem.
type HeadlessConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MaxParallel   int     `mapstructure:"max_parallel"`
	NavTimeoutSec int     `mapstructure:"nav_timeout_seconds"`
	SettleMs      int     `mapstructure:"settle_ms"`
	HostQPS       float64 `mapstructure:"host_qps"`
	HostBurst     int     `mapstructure:"host_burst"`
}

// StorageConfig configures the optional GCS mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that match a config key.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Crawl.Sources = splitSources(cfg.Crawl.Sources)
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = filepath.Join(cfg.DataDir, "sources.csv")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// flagKeys maps config keys to CLI flag names.
var flagKeys = map[string]string{
	"crawl.sources":    "sources",
	"crawl.workers":    "workers",
	"data_dir":         "data-dir",
	"logging.level":    "log-level",
	"headless.enabled": "headless",
	"metrics.enabled":  "metrics",
	"metrics.addr":     "metrics-addr",
}

// bindEnv keeps the unprefixed variable names operators already use.
func bindEnv(v *viper.Viper) error {
	for key, env := range map[string][]string{
		"github.token":  {"NIDUS_GITHUB_TOKEN", "GITHUB_TOKEN"},
		"logging.level": {"NIDUS_LOGGING_LEVEL", "LOG_LEVEL"},
	} {
		if err := v.BindEnv(append([]string{key}, env...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	gh := sources.DefaultGitHubConfig()

	v.SetDefault("data_dir", "data_raw")
	v.SetDefault("manifest_path", "")
	v.SetDefault("crawl.sources", []string{sources.NameGitHub, sources.NameVendors, sources.NameStandards, sources.NamePages})
	v.SetDefault("crawl.workers", 0)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "nidus-scraper/0.1")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("retry.attempts", retry.DefaultAttempts)
	v.SetDefault("retry.base_delay_ms", int(retry.DefaultBaseDelay/time.Millisecond))
	v.SetDefault("github.search_url", gh.SearchURL)
	v.SetDefault("github.extensions", gh.Extensions)
	v.SetDefault("github.min_stars", gh.MinStars)
	v.SetDefault("github.max_pages", gh.MaxPages)
	v.SetDefault("github.per_page", gh.PerPage)
	v.SetDefault("github.modified_within", gh.ModifiedWithin)
	v.SetDefault("github.workers", gh.Workers)
	v.SetDefault("vendors.pages", sources.DefaultVendorPages)
	v.SetDefault("vendors.workers", 32)
	v.SetDefault("standards.urls", sources.DefaultStandardURLs)
	v.SetDefault("standards.workers", 4)
	v.SetDefault("pages.domains_file", "vendor_domains.json")
	v.SetDefault("pages.max_depth", 2)
	v.SetDefault("pages.max_pages", 30)
	v.SetDefault("pages.workers", 4)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 4)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_ms", 500)
	v.SetDefault("headless.host_qps", 1.0)
	v.SetDefault("headless.host_burst", 2)
	v.SetDefault("storage.prefix", "data_raw")
	v.SetDefault("db.table", "manifest_records")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Crawl.Workers < 0 {
		return fmt.Errorf("crawl.workers must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be > 0")
	}
	if c.Retry.BaseDelayMs < 0 {
		return fmt.Errorf("retry.base_delay_ms must be >= 0")
	}
	if c.Pages.MaxDepth < 0 || c.Pages.MaxPages < 0 {
		return fmt.Errorf("pages.max_depth and pages.max_pages must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	return nil
}

// RetryPolicy converts the retry section into a retry.Policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  c.Retry.Attempts,
		BaseDelay: time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
	}
}

// HTTPTimeout returns the per-request fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Sources returns the per-source settings.
func (c Config) Sources() sources.Config {
	return sources.Config{
		GitHub:    c.GitHub,
		Vendors:   c.Vendors,
		Standards: c.Standards,
		Pages:     c.Pages,
	}
}

// splitSources accepts both lists and comma separated entries.
func splitSources(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, s := range strings.Split(entry, ",") {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
