// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/maxscroll"
)

// Supported store drivers.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Store     StoreConfig     `mapstructure:"store"`
	Hub       HubConfig       `mapstructure:"hub"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int     `mapstructure:"port"`
	ReadTimeoutSeconds     int     `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int     `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int     `mapstructure:"shutdown_timeout_seconds"`
	MaxBodyBytes           int64   `mapstructure:"max_body_bytes"`
	RateLimitRPS           float64 `mapstructure:"rate_limit_rps"` // per client; 0 disables
	RateLimitBurst         int     `mapstructure:"rate_limit_burst"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// TrackerConfig maps onto maxscroll.Options.
type TrackerConfig struct {
	TrackingID            string         `mapstructure:"tracking_id"`
	IncreaseThreshold     int            `mapstructure:"increase_threshold"`
	IgnoreURLQuery        bool           `mapstructure:"ignore_url_query"`
	SessionTimeoutMinutes int            `mapstructure:"session_timeout_minutes"`
	TimeZone              string         `mapstructure:"time_zone"`
	MaxScrollMetricIndex  int            `mapstructure:"max_scroll_metric_index"`
	DebounceMs            int            `mapstructure:"debounce_ms"`
	FieldsObj             map[string]any `mapstructure:"fields_obj"`
}

// StoreConfig selects the backend for scroll and session state.
type StoreConfig struct {
	Driver   string              `mapstructure:"driver"`
	Redis    RedisStoreConfig    `mapstructure:"redis"`
	Postgres PostgresStoreConfig `mapstructure:"postgres"`
}

// RedisStoreConfig configures the Redis hash store.
type RedisStoreConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// PostgresStoreConfig configures the Postgres table store.
type PostgresStoreConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// HubConfig tunes hit batching and the always-on sinks.
type HubConfig struct {
	BufferSize         int  `mapstructure:"buffer_size"`
	MaxBatchHits       int  `mapstructure:"max_batch_hits"`
	MaxBatchWaitMs     int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSeconds int  `mapstructure:"sink_timeout_seconds"`
	LogSink            bool `mapstructure:"log_sink"`
	PrometheusSink     bool `mapstructure:"prometheus_sink"`
}

// PubSubConfig holds metadata for publish-subscribe delivery of hits.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig writes hit batches to a Cloud Storage bucket.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// RegistryConfig bounds how long idle clients are kept.
type RegistryConfig struct {
	IdleTimeoutMinutes   int `mapstructure:"idle_timeout_minutes"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MAXSCROLL")
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
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 10)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("tracker.tracking_id", "UA-00000-1")
	v.SetDefault("tracker.increase_threshold", maxscroll.DefaultIncreaseThreshold)
	v.SetDefault("tracker.ignore_url_query", true)
	v.SetDefault("tracker.session_timeout_minutes", 30)
	v.SetDefault("tracker.time_zone", "")
	v.SetDefault("tracker.max_scroll_metric_index", 0)
	v.SetDefault("tracker.debounce_ms", int(maxscroll.DefaultDebounceWait/time.Millisecond))
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.ttl_hours", 24)
	v.SetDefault("store.postgres.table", "scroll_state")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.min_conns", 1)
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.max_batch_hits", 100)
	v.SetDefault("hub.max_batch_wait_ms", 1000)
	v.SetDefault("hub.sink_timeout_seconds", 10)
	v.SetDefault("hub.log_sink", true)
	v.SetDefault("hub.prometheus_sink", true)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "hits")
	v.SetDefault("registry.idle_timeout_minutes", 30)
	v.SetDefault("registry.sweep_interval_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "maxscroll")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if strings.TrimSpace(c.Tracker.TrackingID) == "" {
		return fmt.Errorf("tracker.tracking_id is required")
	}
	if c.Tracker.IncreaseThreshold < 1 || c.Tracker.IncreaseThreshold > 100 {
		return fmt.Errorf("tracker.increase_threshold must be between 1 and 100")
	}
	if c.Tracker.SessionTimeoutMinutes <= 0 {
		return fmt.Errorf("tracker.session_timeout_minutes must be > 0")
	}
	if c.Tracker.TimeZone != "" {
		if _, err := time.LoadLocation(c.Tracker.TimeZone); err != nil {
			return fmt.Errorf("tracker.time_zone: %w", err)
		}
	}
	if c.Tracker.MaxScrollMetricIndex < 0 {
		return fmt.Errorf("tracker.max_scroll_metric_index must be >= 0")
	}
	if c.Tracker.DebounceMs <= 0 {
		return fmt.Errorf("tracker.debounce_ms must be > 0")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be set for the redis driver")
		}
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, redis, postgres", c.Store.Driver)
	}
	if c.Hub.BufferSize <= 0 {
		return fmt.Errorf("hub.buffer_size must be > 0")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive is enabled")
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps must be >= 0")
	}
	if c.Registry.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("registry.idle_timeout_minutes must be > 0")
	}
	return nil
}

// Options converts the tracker section into maxscroll options. Runtime
// collaborators (logger, metrics, clock) are left for the caller.
func (c TrackerConfig) Options() maxscroll.Options {
	return maxscroll.Options{
		IncreaseThreshold:    c.IncreaseThreshold,
		IgnoreURLQuery:       maxscroll.Bool(c.IgnoreURLQuery),
		SessionTimeout:       time.Duration(c.SessionTimeoutMinutes) * time.Minute,
		TimeZone:             c.TimeZone,
		MaxScrollMetricIndex: c.MaxScrollMetricIndex,
		FieldsObj:            c.fields(),
		DebounceWait:         time.Duration(c.DebounceMs) * time.Millisecond,
	}
}

// Settings converts the hub section into hit.Hub settings.
func (c HubConfig) Settings() hit.Config {
	return hit.Config{
		BufferSize:   c.BufferSize,
		MaxBatchHits: c.MaxBatchHits,
		MaxBatchWait: time.Duration(c.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:  time.Duration(c.SinkTimeoutSeconds) * time.Second,
	}
}

// IdleTimeout returns the registry idle timeout.
func (c RegistryConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns how often idle clients are looked for.
func (c RegistryConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// TTL returns the Redis key expiry; zero hours disables expiry.
func (c RedisStoreConfig) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return -1
	}
	return time.Duration(c.TTLHours) * time.Hour
}
