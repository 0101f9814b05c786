package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rpggio/taskflow/internal/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// TrustProxy takes client addresses from forwarding headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

type TransportConfig struct {
	// Mode is "http" or "stdio".
	Mode string `yaml:"mode"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// DefaultUser is the caller assumed when auth is disabled.
	DefaultUser string `yaml:"default_user"`
}

// MetricsConfig enables the OpenTelemetry meter provider.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RateLimitConfig selects where limiter state lives and overrides per-operation limits.
type RateLimitConfig struct {
	// Store is "memory", "sqlite", "bolt" or "redis".
	Store         string                      `yaml:"store"`
	Redis         RedisConfig                 `yaml:"redis"`
	BoltPath      string                      `yaml:"bolt_path"`
	Ingress       IngressConfig               `yaml:"ingress"`
	SweepInterval time.Duration               `yaml:"sweep_interval"`
	IdleTTL       time.Duration               `yaml:"idle_ttl"`
	Operations    map[string]ratelimit.Config `yaml:"operations"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// IngressConfig bounds raw HTTP request rate per client address. Zero RPS disables it.
type IngressConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Limits returns the default operation limits with configured overrides applied.
func (c RateLimitConfig) Limits() (map[ratelimit.Operation]ratelimit.Config, error) {
	return ratelimit.MergeConfigs(ratelimit.DefaultConfigs(), c.Operations)
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		DB: DBConfig{
			Path: "taskflow.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			Enabled:     true,
			DefaultUser: "local",
		},
		RateLimit: RateLimitConfig{
			Store:         "memory",
			Redis:         RedisConfig{Addr: "localhost:6379", Prefix: "taskflow:rl:"},
			BoltPath:      "taskflow-limits.bolt",
			Ingress:       IngressConfig{RPS: 20, Burst: 40},
			SweepInterval: time.Minute,
			IdleTTL:       2 * time.Hour,
		},
	}

	if path := os.Getenv("TASKFLOW_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("TASKFLOW_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("TASKFLOW_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid TASKFLOW_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if trust := os.Getenv("TASKFLOW_TRUST_PROXY"); trust != "" {
		v, err := strconv.ParseBool(trust)
		if err != nil {
			return fmt.Errorf("invalid TASKFLOW_TRUST_PROXY: %w", err)
		}
		cfg.Server.TrustProxy = v
	}
	if mode := os.Getenv("TASKFLOW_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = strings.ToLower(mode)
	}
	if dbPath := os.Getenv("TASKFLOW_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("TASKFLOW_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("TASKFLOW_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if enabled := os.Getenv("TASKFLOW_AUTH_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid TASKFLOW_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = v
	}
	if user := os.Getenv("TASKFLOW_DEFAULT_USER"); user != "" {
		cfg.Auth.DefaultUser = user
	}
	if store := os.Getenv("TASKFLOW_RATELIMIT_STORE"); store != "" {
		cfg.RateLimit.Store = strings.ToLower(store)
	}
	if path := os.Getenv("TASKFLOW_BOLT_PATH"); path != "" {
		cfg.RateLimit.BoltPath = path
	}
	if addr := os.Getenv("TASKFLOW_REDIS_ADDR"); addr != "" {
		cfg.RateLimit.Redis.Addr = addr
	}
	if password := os.Getenv("TASKFLOW_REDIS_PASSWORD"); password != "" {
		cfg.RateLimit.Redis.Password = password
	}
	if enabled := os.Getenv("TASKFLOW_METRICS_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid TASKFLOW_METRICS_ENABLED: %w", err)
		}
		cfg.Metrics.Enabled = v
	}
	if rps := os.Getenv("TASKFLOW_INGRESS_RPS"); rps != "" {
		v, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("invalid TASKFLOW_INGRESS_RPS: %w", err)
		}
		cfg.RateLimit.Ingress.RPS = v
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("unknown transport mode %q", c.Transport.Mode)
	}
	switch c.RateLimit.Store {
	case "memory", "sqlite", "bolt", "redis":
	default:
		return fmt.Errorf("unknown rate limit store %q", c.RateLimit.Store)
	}
	if !c.Auth.Enabled && c.Auth.DefaultUser == "" {
		return fmt.Errorf("auth.default_user is required when auth is disabled")
	}
	if c.RateLimit.Ingress.RPS < 0 {
		return fmt.Errorf("ratelimit.ingress.rps must not be negative")
	}
	limits, err := c.RateLimit.Limits()
	if err != nil {
		return err
	}
	if c.RateLimit.IdleTTL <= 0 {
		return fmt.Errorf("ratelimit.idle_ttl must be positive")
	}
	// Limiter state must outlive every window it can still affect.
	for _, op := range slices.Sorted(maps.Keys(limits)) {
		if retention := limits[op].Retention(); c.RateLimit.IdleTTL < retention {
			return fmt.Errorf("ratelimit.idle_ttl %s is shorter than %s retention %s", c.RateLimit.IdleTTL, op, retention)
		}
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
