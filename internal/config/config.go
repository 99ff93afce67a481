// Package config loads and validates venuescout service configuration via
// Viper, following the flat environment-variable contract in the
// specification (VENUESCOUT_-prefixed overrides of sensible defaults).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every service configuration knob.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	AppEnv      string `mapstructure:"app_env"`

	QueryDefaultRadiusM int `mapstructure:"query_default_radius_m"`
	QueryMaxResults     int `mapstructure:"query_max_results"`

	CrawlGlobalConcurrency  int `mapstructure:"crawl_global_concurrency"`
	CrawlPerHostConcurrency int `mapstructure:"crawl_per_host_concurrency"`
	CrawlBudgetMs           int `mapstructure:"crawl_budget_ms"`
	CrawlPageSizeLimitBytes int `mapstructure:"crawl_page_size_limit_bytes"`

	FreshHoursDays             int `mapstructure:"fresh_hours_days"`
	FreshMenuContactPriceDays  int `mapstructure:"fresh_menu_contact_price_days"`
	FreshDescFeaturesDays      int `mapstructure:"fresh_desc_features_days"`

	WorkerCount        int `mapstructure:"worker_count"`
	WorkerBatchSize    int `mapstructure:"worker_batch_size"`
	WorkerSleepSeconds int `mapstructure:"worker_sleep_seconds"`

	SchedulerSleepSeconds  int     `mapstructure:"scheduler_sleep_seconds"`
	SchedulerBatchSize     int     `mapstructure:"scheduler_batch_size"`
	SchedulerTopPercentile float64 `mapstructure:"scheduler_top_percentile"`

	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingOllamaAddr string `mapstructure:"embedding_ollama_addr"`

	APIPort int    `mapstructure:"api_port"`
	APIKey  string `mapstructure:"api_key"`
}

// Load builds a Config from environment variables (all prefixed
// VENUESCOUT_) layered over defaults, then validates it.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VENUESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Bind every key explicitly so AutomaticEnv sees them even though no
	// config file supplies a starting value.
	for _, key := range []string{
		"database_url", "app_env",
		"query_default_radius_m", "query_max_results",
		"crawl_global_concurrency", "crawl_per_host_concurrency",
		"crawl_budget_ms", "crawl_page_size_limit_bytes",
		"fresh_hours_days", "fresh_menu_contact_price_days", "fresh_desc_features_days",
		"worker_count", "worker_batch_size", "worker_sleep_seconds",
		"scheduler_sleep_seconds", "scheduler_batch_size", "scheduler_top_percentile",
		"embedding_model", "embedding_ollama_addr",
		"api_port", "api_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "local")
	v.SetDefault("query_default_radius_m", 1500)
	v.SetDefault("query_max_results", 30)
	v.SetDefault("crawl_global_concurrency", 32)
	v.SetDefault("crawl_per_host_concurrency", 2)
	v.SetDefault("crawl_budget_ms", 5000)
	v.SetDefault("crawl_page_size_limit_bytes", 2_000_000)
	v.SetDefault("fresh_hours_days", 3)
	v.SetDefault("fresh_menu_contact_price_days", 14)
	v.SetDefault("fresh_desc_features_days", 30)
	v.SetDefault("worker_count", 1)
	v.SetDefault("worker_batch_size", 8)
	v.SetDefault("worker_sleep_seconds", 1)
	v.SetDefault("scheduler_sleep_seconds", 300)
	v.SetDefault("scheduler_batch_size", 50)
	v.SetDefault("scheduler_top_percentile", 0.9)
	v.SetDefault("embedding_model", "nomic-embed-text")
	v.SetDefault("embedding_ollama_addr", "http://localhost:11434")
	v.SetDefault("api_port", 8080)
}

// Validate enforces the ranges named in the specification's environment
// table.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set")
	}
	switch c.AppEnv {
	case "local", "staging", "prod":
	default:
		return fmt.Errorf("app_env must be one of local, staging, prod, got %q", c.AppEnv)
	}
	if c.QueryDefaultRadiusM < 1 || c.QueryDefaultRadiusM > 100000 {
		return fmt.Errorf("query_default_radius_m must be in [1, 100000]")
	}
	if c.QueryMaxResults < 1 || c.QueryMaxResults > 30 {
		return fmt.Errorf("query_max_results must be in [1, 30]")
	}
	if c.CrawlGlobalConcurrency <= 0 {
		return fmt.Errorf("crawl_global_concurrency must be > 0")
	}
	if c.CrawlPerHostConcurrency <= 0 {
		return fmt.Errorf("crawl_per_host_concurrency must be > 0")
	}
	if c.CrawlBudgetMs <= 0 {
		return fmt.Errorf("crawl_budget_ms must be > 0")
	}
	if c.CrawlPageSizeLimitBytes <= 0 {
		return fmt.Errorf("crawl_page_size_limit_bytes must be > 0")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be > 0")
	}
	if c.WorkerBatchSize <= 0 {
		return fmt.Errorf("worker_batch_size must be > 0")
	}
	if c.SchedulerTopPercentile <= 0 || c.SchedulerTopPercentile >= 1 {
		return fmt.Errorf("scheduler_top_percentile must be in (0, 1)")
	}
	if c.APIPort <= 0 {
		return fmt.Errorf("api_port must be > 0")
	}
	return nil
}

// CrawlBudget is CrawlBudgetMs as a time.Duration.
func (c Config) CrawlBudget() time.Duration {
	return time.Duration(c.CrawlBudgetMs) * time.Millisecond
}

// FreshnessWindows returns the three per-tier freshness windows as
// durations, in the order hours, menu/contact/price, description/features.
func (c Config) FreshnessWindows() (hours, menuContactPrice, descFeatures time.Duration) {
	return time.Duration(c.FreshHoursDays) * 24 * time.Hour,
		time.Duration(c.FreshMenuContactPriceDays) * 24 * time.Hour,
		time.Duration(c.FreshDescFeaturesDays) * 24 * time.Hour
}
