// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Store         StoreConfig         `yaml:"store"`
	Lock          LockConfig          `yaml:"lock"`
	Engine        EngineConfig        `yaml:"engine"`
	Approvals     ApprovalsConfig     `yaml:"approvals"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Notifier      NotifierConfig      `yaml:"notifier"`
	Advisor       AdvisorConfig       `yaml:"advisor"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// AuthConfig describes JWT verification settings. When disabled, identity
// is taken from X-Actor-Id / X-Tenant-Id headers; intended for development
// and tests only.
type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
}

// StoreConfig describes persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // "memory" or "postgres"
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int           `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LockConfig describes the per-instance mutual exclusion used around
// instance transitions.
type LockConfig struct {
	Driver  string        `yaml:"driver"` // "local" or "redis"
	AddrEnv string        `yaml:"addr_env"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// EngineConfig describes instance engine settings.
type EngineConfig struct {
	// DefaultStepDuration seeds task due dates when a step spec carries
	// no expected duration.
	DefaultStepDuration time.Duration `yaml:"default_step_duration"`
	// SweepInterval is how often overdue instances and approvals are
	// scanned by the background sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ApprovalsConfig describes approval routing settings.
type ApprovalsConfig struct {
	// FallbackApprover receives escalated approvals that have passed
	// their due date.
	FallbackApprover string `yaml:"fallback_approver"`
	// EscalationGrace extends an escalated approval's due date.
	EscalationGrace time.Duration `yaml:"escalation_grace"`
}

// DirectoryConfig describes the identity collaborator.
type DirectoryConfig struct {
	Mode     string            `yaml:"mode"` // "static" or "http"
	BaseURL  string            `yaml:"base_url"`
	Timeout  time.Duration     `yaml:"timeout"`
	CacheTTL time.Duration     `yaml:"cache_ttl"`
	Static   map[string]string `yaml:"static"` // actor id -> display name
}

// NotifierConfig describes the notification collaborator.
type NotifierConfig struct {
	Mode    string        `yaml:"mode"` // "log" or "webhook"
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AdvisorConfig describes the optimization advisor.
type AdvisorConfig struct {
	// BottleneckFactor flags a step as a bottleneck when its observed
	// mean duration exceeds the expected duration by this factor.
	BottleneckFactor float64 `yaml:"bottleneck_factor"`
	// MaxInstances caps how many completed instances a report scans.
	MaxInstances int `yaml:"max_instances"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Auth: AuthConfig{
			JWKSCacheTTL: 1 * time.Hour,
		},
		Store: StoreConfig{
			Driver:          "memory",
			DSNEnv:          "PROCESIO_STORE_DSN",
			MaxConns:        25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lock: LockConfig{
			Driver:  "local",
			AddrEnv: "PROCESIO_REDIS_ADDR",
			TTL:     30 * time.Second,
		},
		Engine: EngineConfig{
			DefaultStepDuration: 24 * time.Hour,
			SweepInterval:       60 * time.Second,
		},
		Approvals: ApprovalsConfig{
			EscalationGrace: 24 * time.Hour,
		},
		Directory: DirectoryConfig{
			Mode:     "static",
			Timeout:  5 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
		Notifier: NotifierConfig{
			Mode:    "log",
			Timeout: 5 * time.Second,
		},
		Advisor: AdvisorConfig{
			BottleneckFactor: 1.5,
			MaxInstances:     500,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled {
		if c.Auth.Issuer == "" {
			errs = append(errs, "auth.issuer is required when auth is enabled")
		}
		if c.Auth.JWKSURL == "" {
			errs = append(errs, "auth.jwks_url is required when auth is enabled")
		}
		if c.Auth.Audience == "" {
			errs = append(errs, "auth.audience is required when auth is enabled")
		}
	}
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	switch c.Lock.Driver {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Sprintf("lock.driver %q is not supported", c.Lock.Driver))
	}
	if c.Notifier.Mode == "webhook" && c.Notifier.URL == "" {
		errs = append(errs, "notifier.url is required for webhook mode")
	}
	if c.Directory.Mode == "http" && c.Directory.BaseURL == "" {
		errs = append(errs, "directory.base_url is required for http mode")
	}
	if c.Advisor.BottleneckFactor <= 1 {
		errs = append(errs, "advisor.bottleneck_factor must be greater than 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads PROCESIO_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROCESIO_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PROCESIO_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("PROCESIO_AUTH_JWKS_URL"); v != "" {
		cfg.Auth.JWKSURL = v
	}
	if v := os.Getenv("PROCESIO_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("PROCESIO_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("PROCESIO_LOCK_DRIVER"); v != "" {
		cfg.Lock.Driver = v
	}
	if v := os.Getenv("PROCESIO_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
