// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SchedulerConfig governs per-job task execution.
type SchedulerConfig struct {
	Workers          int `mapstructure:"workers"`
	JobRunners       int `mapstructure:"job_runners"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	QueueDepth       int `mapstructure:"queue_depth"`
}

// RateLimitConfig bounds outbound crawl/LLM admission per job.
type RateLimitConfig struct {
	DefaultPerMinute int `mapstructure:"default_per_minute"`
	MaxWaitSeconds   int `mapstructure:"max_wait_seconds"`
	Burst            int `mapstructure:"burst"`
}

// CrawlerConfig governs the headless crawl step.
type CrawlerConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	SettleWaitMs      int    `mapstructure:"settle_wait_ms"`
	MaxParallelPages  int    `mapstructure:"max_parallel_pages"`
	ScreenshotQuality int    `mapstructure:"screenshot_quality"`
}

// CacheConfig controls the page snapshot cache.
type CacheConfig struct {
	TTLSeconds       int `mapstructure:"ttl_seconds"`
	SweepIntervalSec int `mapstructure:"sweep_interval_seconds"`
}

// AnalyzerConfig configures the vision LLM client.
type AnalyzerConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

// StorageConfig sets paths and content types for screenshot persistence.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QADOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.job_runners", 2)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.backoff_initial_ms", 250)
	v.SetDefault("scheduler.backoff_max_ms", 5000)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("rate_limit.default_per_minute", 10)
	v.SetDefault("rate_limit.max_wait_seconds", 120)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("crawler.user_agent", "qa-docgen-bot/0.1")
	v.SetDefault("crawler.nav_timeout_seconds", 30)
	v.SetDefault("crawler.settle_wait_ms", 500)
	v.SetDefault("crawler.max_parallel_pages", 2)
	v.SetDefault("crawler.screenshot_quality", 80)
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.sweep_interval_seconds", 60)
	v.SetDefault("analyzer.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("analyzer.model", "gpt-4o")
	v.SetDefault("analyzer.timeout_seconds", 60)
	v.SetDefault("analyzer.max_tokens", 2000)
	v.SetDefault("storage.prefix", "screenshots")
	v.SetDefault("storage.content_type", "image/png")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be > 0")
	}
	if c.Scheduler.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler.max_attempts must be > 0")
	}
	if c.RateLimit.DefaultPerMinute <= 0 {
		return fmt.Errorf("rate_limit.default_per_minute must be > 0")
	}
	if c.Crawler.NavTimeoutSec <= 0 {
		return fmt.Errorf("crawler.nav_timeout_seconds must be > 0")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must be >= 0")
	}
	if c.Analyzer.TimeoutSeconds <= 0 {
		return fmt.Errorf("analyzer.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// CacheTTL returns the snapshot TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// NavTimeout returns the crawl navigation budget as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Crawler.NavTimeoutSec) * time.Second
}

// RateLimitMaxWait returns the bounded permit wait as a duration.
func (c Config) RateLimitMaxWait() time.Duration {
	return time.Duration(c.RateLimit.MaxWaitSeconds) * time.Second
}
