package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Builder    BuilderConfig    `mapstructure:"builder"`
	Generation GenerationConfig `mapstructure:"generation"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Database    string        `mapstructure:"database"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	MaxConns    int           `mapstructure:"max_conns"`
	MinConns    int           `mapstructure:"min_conns"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// QueueConfig holds job queue settings
type QueueConfig struct {
	Type          string        `mapstructure:"type"` // "memory" for tests, "redis" for production
	Stream        string        `mapstructure:"stream"`
	Group         string        `mapstructure:"group"`
	Consumer      string        `mapstructure:"consumer"` // empty = hostname-derived
	BlockTimeout  time.Duration `mapstructure:"block_timeout"`
	EventsChannel string        `mapstructure:"events_channel"`
	LeaseTTL      time.Duration `mapstructure:"lease_ttl"`    // must exceed worst-case job duration
	ReclaimIdle   time.Duration `mapstructure:"reclaim_idle"` // must exceed lease_ttl
}

// LLMConfig holds completion provider settings
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`         // standard tier
	PremiumModel   string        `mapstructure:"premium_model"` // complex jobs
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// BuilderConfig holds builder service connection settings
type BuilderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// GenerationConfig holds workflow generation settings
type GenerationConfig struct {
	Platform       string `mapstructure:"platform"`
	MaxContextDocs int    `mapstructure:"max_context_docs"`
}

// LimitsConfig holds rate limiting settings
type LimitsConfig struct {
	IntakeRequests int           `mapstructure:"intake_requests"` // per client
	IntakeWindow   time.Duration `mapstructure:"intake_window"`
	GlobalRequests int           `mapstructure:"global_requests"` // all clients combined
	LLMRequests    int           `mapstructure:"llm_requests"`
	LLMWindow      time.Duration `mapstructure:"llm_window"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool `mapstructure:"enable_pprof"`
	PprofPort   int  `mapstructure:"pprof_port"`
}

// Load loads configuration from defaults, an optional config.yaml, and
// AUTOMATION_* environment variables (highest precedence).
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("AUTOMATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults suffice
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Service.Name = serviceName

	return &cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_format", "text") // text for development

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "automation")
	v.SetDefault("database.user", "automation")
	v.SetDefault("database.password", "automation")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_idle_time", "30m")
	v.SetDefault("database.max_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.stream", "automation.jobs")
	v.SetDefault("queue.group", "automation-workers")
	v.SetDefault("queue.consumer", "")
	v.SetDefault("queue.block_timeout", "5s")
	v.SetDefault("queue.events_channel", "automation.events")
	v.SetDefault("queue.lease_ttl", "15m")
	v.SetDefault("queue.reclaim_idle", "20m")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.premium_model", "gpt-4o")
	v.SetDefault("llm.request_timeout", "60s")
	v.SetDefault("llm.cache_ttl", "1h")

	v.SetDefault("builder.base_url", "http://localhost:9200")
	v.SetDefault("builder.api_key", "")
	v.SetDefault("builder.connect_timeout", "5s")
	v.SetDefault("builder.request_timeout", "30s")

	v.SetDefault("generation.platform", "n8n")
	v.SetDefault("generation.max_context_docs", 10)

	v.SetDefault("limits.intake_requests", 60)
	v.SetDefault("limits.intake_window", "1m")
	v.SetDefault("limits.global_requests", 600)
	v.SetDefault("limits.llm_requests", 30)
	v.SetDefault("limits.llm_window", "1m")

	v.SetDefault("telemetry.enable_pprof", true)
	v.SetDefault("telemetry.pprof_port", 6060)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	switch c.Queue.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid queue type: %q", c.Queue.Type)
	}

	// A reclaimed message checked against a live lease would be acked
	// and lost, so reclaim must only fire after the lease is gone
	if c.Queue.ReclaimIdle > 0 && c.Queue.LeaseTTL > 0 && c.Queue.ReclaimIdle <= c.Queue.LeaseTTL {
		return fmt.Errorf("reclaim_idle (%s) must exceed lease_ttl (%s)", c.Queue.ReclaimIdle, c.Queue.LeaseTTL)
	}

	if c.Generation.MaxContextDocs < 1 {
		return fmt.Errorf("max_context_docs must be >= 1")
	}

	if c.Limits.IntakeRequests < 1 {
		return fmt.Errorf("intake_requests must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}
