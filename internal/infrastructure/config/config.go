package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration. Keys map to YAML paths and to
// ASTRANETIX_* environment variables ("." becomes "_").
type Config struct {
	Environment string          `yaml:"environment" mapstructure:"environment" validate:"oneof=development test staging production"`
	LogLevel    string          `yaml:"log_level" mapstructure:"log_level"`
	Server      ServerConfig    `yaml:"server" mapstructure:"server"`
	Database    DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Redis       RedisConfig     `yaml:"redis" mapstructure:"redis"`
	JWT         JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	Kafka       KafkaConfig     `yaml:"kafka" mapstructure:"kafka"`
	Platform    PlatformConfig  `yaml:"platform" mapstructure:"platform"`
	RateLimit   RateLimitConfig `yaml:"ratelimit" mapstructure:"ratelimit"`
	Reports     ReportsConfig   `yaml:"reports" mapstructure:"reports"`
	Telemetry   TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Security    SecurityConfig  `yaml:"security" mapstructure:"security"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	TrustedProxies  []string      `yaml:"trusted_proxies" mapstructure:"trusted_proxies" validate:"dive,cidr|ip"`
}

// DatabaseConfig selects the gorm dialector and pool limits.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// JWTConfig holds token signing parameters. Tokens are HS256.
type JWTConfig struct {
	Secret   string        `yaml:"secret" mapstructure:"secret"`
	Issuer   string        `yaml:"issuer" mapstructure:"issuer" validate:"required"`
	Audience []string      `yaml:"audience" mapstructure:"audience" validate:"min=1"`
	Expiry   time.Duration `yaml:"expiry" mapstructure:"expiry"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers     []string `yaml:"brokers" mapstructure:"brokers"`
	TopicPrefix string   `yaml:"topic_prefix" mapstructure:"topic_prefix"`
}

// PlatformConfig carries tenant-facing naming.
type PlatformConfig struct {
	AppName string `yaml:"app_name" mapstructure:"app_name"`
	Domain  string `yaml:"domain" mapstructure:"domain" validate:"required"`
	Version string `yaml:"version" mapstructure:"version"`
}

type RateLimitConfig struct {
	LoginPerMinute int `yaml:"login_per_minute" mapstructure:"login_per_minute" validate:"min=1"`
}

// SecurityConfig holds the master key that seals stored network credentials.
// An empty key falls back to the JWT secret.
type SecurityConfig struct {
	CredentialKey string `yaml:"credential_key" mapstructure:"credential_key"`
}

// CredentialKey returns the key for sealing device and RADIUS secrets.
func (c *Config) CredentialKey() string {
	if c.Security.CredentialKey != "" {
		return c.Security.CredentialKey
	}
	return c.JWT.Secret
}

// ReportsConfig points at the badger directory holding rendered reports.
type ReportsConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	InMemory  bool   `yaml:"in_memory" mapstructure:"in_memory"`
	Scheduler bool   `yaml:"scheduler" mapstructure:"scheduler"`
}

type TelemetryConfig struct {
	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
