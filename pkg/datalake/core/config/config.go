// Package config provides the configuration structures of the exporter and the utilities
// to load them from embedded YAML, .env files and environment variables.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EmbeddedConfig holds the content of the configuration file, typically embedded by main.go.
type EmbeddedConfig []byte

// EnvironmentConfig holds the connection settings of one target environment (dev, test, prod...).
type EnvironmentConfig struct {
	Env      string `yaml:"env"`
	BaseURL  string `yaml:"base_url"`
	Account  string `yaml:"account"`
	Password string `yaml:"password"`
}

// RetryConfig holds a fixed-interval retry setting.
type RetryConfig struct {
	MaxAttempts     int `yaml:"max_attempts"`     // Total attempts, including the first one.
	InitialInterval int `yaml:"initial_interval"` // Pause between attempts in milliseconds.
	// RetryableExceptions names registered error types retried in addition to errors flagged retryable.
	RetryableExceptions []string `yaml:"retryable_exceptions"`
}

// Interval returns InitialInterval as a time.Duration.
func (r RetryConfig) Interval() time.Duration {
	return time.Duration(r.InitialInterval) * time.Millisecond
}

// ExportConfig holds the settings of the export pipeline.
type ExportConfig struct {
	BatchName          string      `yaml:"batch_name"`
	Product            string      `yaml:"product"`
	BackfillSuffix     string      `yaml:"backfill_suffix"`
	ChunkSize          int         `yaml:"chunk_size"`
	MaxConcurrency     int         `yaml:"max_concurrency"`
	DictionaryVersion  string      `yaml:"dictionary_version"`
	RunDateTimeOfDay   string      `yaml:"run_date_time_of_day"`
	MaxVersionAttempts int         `yaml:"max_version_attempts"`
	StopDelayMs        int         `yaml:"stop_delay_ms"`
	HTTPTimeoutSeconds int         `yaml:"http_timeout_seconds"`
	ChunkRetry         RetryConfig `yaml:"chunk_retry"`
	RunRetry           RetryConfig `yaml:"run_retry"`
}

// StopDelay is the settle time between the last chunk and the End event.
func (e ExportConfig) StopDelay() time.Duration {
	return time.Duration(e.StopDelayMs) * time.Millisecond
}

// HTTPTimeout bounds every single request to the data lake.
func (e ExportConfig) HTTPTimeout() time.Duration {
	return time.Duration(e.HTTPTimeoutSeconds) * time.Second
}

// SourceConfig selects the record source. Properties are bound to the source's own struct.
type SourceConfig struct {
	Type       string                 `yaml:"type"`
	Properties map[string]interface{} `yaml:"properties"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Database string     `yaml:"database"` // Database name, or the file path for sqlite.
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Sslmode  string     `yaml:"sslmode"`
	Pool     PoolConfig `yaml:"pool"`
}

// RepositoryConfig selects where export run history is kept.
type RepositoryConfig struct {
	Type     string         `yaml:"type"` // inmemory, sqlite, postgres or mysql.
	Database DatabaseConfig `yaml:"database"`
}

// TelemetryConfig configures OpenTelemetry tracing. Tracing is disabled when OTLPEndpoint is empty.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPProtocol string `yaml:"otlp_protocol"` // http or grpc.
	Insecure     bool   `yaml:"insecure"`
}

// MetricsConfig configures the Prometheus Pushgateway. Pushing is disabled when PushgatewayURL is empty.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	JobName        string `yaml:"job_name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedKeys lists setting names whose values are masked in logs.
	MaskedKeys []string `yaml:"masked_keys"`
}

// DatalakeConfig holds all configuration under the "datalake" top-level key.
type DatalakeConfig struct {
	System       SystemConfig                 `yaml:"system"`
	Environments map[string]EnvironmentConfig `yaml:"environments"`
	Export       ExportConfig                 `yaml:"export"`
	Source       SourceConfig                 `yaml:"source"`
	Repository   RepositoryConfig             `yaml:"repository"`
	Telemetry    TelemetryConfig              `yaml:"telemetry"`
	Metrics      MetricsConfig                `yaml:"metrics"`
	Security     SecurityConfig               `yaml:"security"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Datalake DatalakeConfig `yaml:"datalake"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Datalake: DatalakeConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Environments: map[string]EnvironmentConfig{},
			Export: ExportConfig{
				BatchName: "GPE",
				Product:   "ID",
				// The service states a maximum of 1000 records per upload; uploads above 900 were rejected in practice.
				ChunkSize:          900,
				MaxConcurrency:     3,
				DictionaryVersion:  "1",
				RunDateTimeOfDay:   "02:00:00.000",
				MaxVersionAttempts: 10,
				StopDelayMs:        5000,
				HTTPTimeoutSeconds: 100,
				ChunkRetry: RetryConfig{
					MaxAttempts:         4,
					InitialInterval:     2000,
					RetryableExceptions: []string{"ChunkTransportError"},
				},
				RunRetry: RetryConfig{
					MaxAttempts:         5,
					InitialInterval:     30000,
					RetryableExceptions: []string{"BatchStartFailure"},
				},
			},
			Source:     SourceConfig{Type: "static", Properties: map[string]interface{}{}},
			Repository: RepositoryConfig{Type: "inmemory"},
			Telemetry: TelemetryConfig{
				ServiceName:  "datalake-export",
				OTLPProtocol: "http",
			},
			Metrics: MetricsConfig{JobName: "datalake_export"},
			Security: SecurityConfig{
				MaskedKeys: []string{"password", "apikey", "account"},
			},
		},
	}
}

// Environment returns the settings of the named environment.
func (c *Config) Environment(name string) (EnvironmentConfig, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	env, ok := c.Datalake.Environments[name]
	if !ok {
		known := make([]string, 0, len(c.Datalake.Environments))
		for k := range c.Datalake.Environments {
			known = append(known, k)
		}
		sort.Strings(known)
		return EnvironmentConfig{}, fmt.Errorf("unknown environment '%s' (configured: %s)", name, strings.Join(known, ", "))
	}
	if env.BaseURL == "" {
		return EnvironmentConfig{}, fmt.Errorf("environment '%s' has no base_url", name)
	}
	if env.Env == "" {
		env.Env = name
	}
	return env, nil
}

// Validate checks the value ranges the pipeline relies on.
func (c *Config) Validate() error {
	e := c.Datalake.Export
	switch {
	case e.BatchName == "":
		return fmt.Errorf("export.batch_name must not be empty")
	case e.ChunkSize < 1 || e.ChunkSize > 1000:
		return fmt.Errorf("export.chunk_size must be between 1 and 1000, got %d", e.ChunkSize)
	case e.MaxConcurrency < 1:
		return fmt.Errorf("export.max_concurrency must be at least 1, got %d", e.MaxConcurrency)
	case e.MaxVersionAttempts < 1:
		return fmt.Errorf("export.max_version_attempts must be at least 1, got %d", e.MaxVersionAttempts)
	case e.ChunkRetry.MaxAttempts < 1 || e.RunRetry.MaxAttempts < 1:
		return fmt.Errorf("retry max_attempts must be at least 1")
	case e.ChunkRetry.InitialInterval < 0 || e.RunRetry.InitialInterval < 0 || e.StopDelayMs < 0:
		return fmt.Errorf("retry intervals and stop delay must not be negative")
	}
	if _, err := time.Parse("15:04:05.000", e.RunDateTimeOfDay); err != nil {
		return fmt.Errorf("export.run_date_time_of_day '%s' is not HH:mm:ss.fff: %w", e.RunDateTimeOfDay, err)
	}
	if _, err := time.LoadLocation(c.Datalake.System.Timezone); err != nil {
		return fmt.Errorf("system.timezone '%s' is invalid: %w", c.Datalake.System.Timezone, err)
	}
	return nil
}

// MaskedEnvironment returns the environment settings as a map with secret values masked, for logging.
func (c *Config) MaskedEnvironment(env EnvironmentConfig) map[string]interface{} {
	values := map[string]interface{}{
		"env":      env.Env,
		"base_url": env.BaseURL,
		"account":  env.Account,
		"password": env.Password,
	}
	for _, key := range c.Datalake.Security.MaskedKeys {
		if _, ok := values[key]; ok {
			values[key] = "********"
		}
	}
	return values
}
