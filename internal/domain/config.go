package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Tier       Tier             `json:"tier" yaml:"tier" validate:"oneof=community pro"`
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Worker     WorkerConfig     `json:"worker" yaml:"worker"`
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// ServerConfig holds HTTP listener settings. Timeouts are in seconds.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout" validate:"min=0"`
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout" validate:"min=0"`
}

// EngineConfig holds inference settings.
type EngineConfig struct {
	// ModelFile is a YAML or JSON model definition loaded at startup.
	// Empty means the stored model, or the built-in land pricing model.
	ModelFile string `json:"modelFile" yaml:"modelFile"`

	// MaxWorkers bounds concurrent evaluations in a batch.
	MaxWorkers int `json:"maxWorkers" yaml:"maxWorkers" validate:"min=1"`

	// CacheTTL is how long an estimate for identical inputs is reused, in
	// seconds. Zero disables result caching.
	CacheTTL int `json:"cacheTtl" yaml:"cacheTtl" validate:"min=0"`

	MaxBatchSize int `json:"maxBatchSize" yaml:"maxBatchSize" validate:"min=1"`
}

// WorkerConfig controls the async estimate worker.
type WorkerConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Tenants []string `json:"tenants" yaml:"tenants" validate:"required_if=Enabled true,dive,required"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=json text"`
}

// TracingConfig names the service on exported spans. Spans go to whatever
// OpenTelemetry provider the process registers.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// Tier selects a default component set.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process cache and channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns the single-process community setup.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeout: 30, WriteTimeout: 30},
		Tier:   TierCommunity,
		Engine: EngineConfig{MaxWorkers: 16, CacheTTL: 300, MaxBatchSize: 1000},
		Worker: WorkerConfig{Tenants: []string{"default"}},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fuzzyprice.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300,
		},
		EventBus: EventBusConfig{Type: "channel", ChannelBufferSize: 1000},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Tracing:  TracingConfig{ServiceName: "fuzzyprice"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// ProConfig returns the replicated setup: shared database, two-phase cache,
// NATS with a worker queue group, and the async worker on.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Worker.Enabled = true
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fuzzyprice",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       60,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "fuzzyprice-workers",
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig overlays the YAML file at path onto base.
// Fields absent from the file keep their base values.
func LoadConfig(path string, base *Config) (*Config, error) {
	if base == nil {
		base = DefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// envOverrides are applied after the YAML overlay.
var envOverrides = map[string]func(*Config, string) error{
	"FUZZYPRICE_HOST":       func(c *Config, v string) error { c.Server.Host = v; return nil },
	"FUZZYPRICE_PORT":       func(c *Config, v string) error { return setInt(&c.Server.Port, v) },
	"FUZZYPRICE_MODEL_FILE": func(c *Config, v string) error { c.Engine.ModelFile = v; return nil },
	"FUZZYPRICE_MAX_WORKERS": func(c *Config, v string) error {
		return setInt(&c.Engine.MaxWorkers, v)
	},
	"FUZZYPRICE_SQLITE_PATH": func(c *Config, v string) error { c.Repository.SQLitePath = v; return nil },
	"FUZZYPRICE_POSTGRES_HOST": func(c *Config, v string) error {
		c.Repository.PostgresHost = v
		return nil
	},
	"FUZZYPRICE_POSTGRES_PASSWORD": func(c *Config, v string) error {
		c.Repository.PostgresPassword = v
		return nil
	},
	"FUZZYPRICE_REDIS_ADDR": func(c *Config, v string) error { c.Cache.RedisAddr = v; return nil },
	"FUZZYPRICE_NATS_URL":   func(c *Config, v string) error { c.EventBus.NATSUrl = v; return nil },
	"FUZZYPRICE_LOG_LEVEL":  func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil },
	"FUZZYPRICE_ASYNC_WORKER": func(c *Config, v string) error {
		on, err := strconv.ParseBool(v)
		c.Worker.Enabled = on
		return err
	},
	"FUZZYPRICE_TENANTS": func(c *Config, v string) error {
		c.Worker.Tenants = splitList(v)
		return nil
	},
}

// ApplyEnv overrides fields from FUZZYPRICE_* variables found by lookup.
// FUZZYPRICE_DEBUG=true wins over FUZZYPRICE_LOG_LEVEL.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for name, apply := range envOverrides {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := apply(cfg, v); err != nil {
			return fmt.Errorf("%s=%q: %w", name, v, err)
		}
	}
	if v, _ := lookup("FUZZYPRICE_DEBUG"); v == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}

// Validate checks the settings every component relies on.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
