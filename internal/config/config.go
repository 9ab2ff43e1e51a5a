// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads apihub process settings from a YAML file, a .env file
// and APIHUB_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Backend types.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Tracing exporter types.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// ConfigError describes a configuration problem.
type ConfigError struct {
	Key    string
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config %s: %s", e.Key, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Settings is the complete apihub process configuration.
type Settings struct {
	Catalog   CatalogConfig   `yaml:"catalog"`
	Backend   BackendConfig   `yaml:"backend"`
	Connector ConnectorConfig `yaml:"connector"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// CatalogConfig locates the function catalog.
type CatalogConfig struct {
	// Path is the catalog file (YAML or JSON).
	// Environment: APIHUB_CATALOG
	Path string `yaml:"path"`

	// Watch reloads the catalog when the file changes.
	// Environment: APIHUB_CATALOG_WATCH
	Watch bool `yaml:"watch"`
}

// BackendConfig selects where rate-limit windows, error logs and call logs
// are kept.
type BackendConfig struct {
	// Type is memory, sqlite or redis.
	// Environment: APIHUB_BACKEND
	// Default: sqlite
	Type string `yaml:"type"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	// Environment: APIHUB_SQLITE_PATH
	Path string `yaml:"path"`
	WAL  bool   `yaml:"wal"`
}

// RedisConfig configures the redis rate-limit store. Error and call logs stay
// in sqlite when redis is selected.
type RedisConfig struct {
	// Environment: APIHUB_REDIS_ADDR
	Addr string `yaml:"addr"`
	// Environment: APIHUB_REDIS_PASSWORD
	Password string `yaml:"password"`
	// Environment: APIHUB_REDIS_DB
	DB     int    `yaml:"db"`
	Prefix string `yaml:"prefix"`
}

// ConnectorConfig tunes outbound calls.
type ConnectorConfig struct {
	// Timeout bounds each HTTP attempt.
	// Environment: APIHUB_HTTP_TIMEOUT
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// RateLimitEnabled is the global rate limiting switch.
	// Environment: APIHUB_RATE_LIMIT_ENABLED
	// Default: true
	RateLimitEnabled bool `yaml:"rate_limit_enabled"`

	// OAuth2Refresh enables refresh-token grants for expired oauth2 records.
	// Environment: APIHUB_OAUTH2_REFRESH
	// Default: false
	OAuth2Refresh bool `yaml:"oauth2_refresh"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	// Environment: APIHUB_LISTEN_ADDR
	// Default: 127.0.0.1:8080
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// IngressRate is the accepted requests per second across all clients;
	// zero disables throttling.
	// Environment: APIHUB_INGRESS_RATE
	IngressRate float64 `yaml:"ingress_rate"`

	// IngressBurst is the throttle burst size.
	// Environment: APIHUB_INGRESS_BURST
	// Default: 20
	IngressBurst int `yaml:"ingress_burst"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter is none, console, otlp (gRPC) or otlp-http.
	// Environment: APIHUB_TRACING_EXPORTER
	// Default: none
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector address for otlp exporters.
	// Environment: OTEL_EXPORTER_OTLP_ENDPOINT
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for otlp exporters.
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of traces recorded.
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate"`
}

// Default returns settings with all defaults applied.
func Default() *Settings {
	return &Settings{
		Catalog: CatalogConfig{
			Path: "catalog.yaml",
		},
		Backend: BackendConfig{
			Type: BackendSQLite,
			SQLite: SQLiteConfig{
				Path: filepath.Join(defaultDataDir(), "apihub.db"),
				WAL:  true,
			},
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "apihub:",
			},
		},
		Connector: ConnectorConfig{
			Timeout:          30 * time.Second,
			RateLimitEnabled: true,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
			IngressBurst:    20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:   ExporterNone,
			SampleRate: 1.0,
		},
	}
}

// Load reads settings from path (optional), then applies environment
// overrides and validates. When path is empty, the default config file is
// used if it exists.
func Load(path string) (*Settings, error) {
	cfg := Default()

	if path == "" {
		if p, err := DefaultConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Settings) applyDefaults() {
	defaults := Default()

	if c.Catalog.Path == "" {
		c.Catalog.Path = defaults.Catalog.Path
	}
	if c.Backend.Type == "" {
		c.Backend.Type = defaults.Backend.Type
	}
	if c.Backend.SQLite.Path == "" {
		c.Backend.SQLite.Path = defaults.Backend.SQLite.Path
	}
	if c.Backend.Redis.Addr == "" {
		c.Backend.Redis.Addr = defaults.Backend.Redis.Addr
	}
	if c.Backend.Redis.Prefix == "" {
		c.Backend.Redis.Prefix = defaults.Backend.Redis.Prefix
	}
	if c.Connector.Timeout == 0 {
		c.Connector.Timeout = defaults.Connector.Timeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if c.Server.IngressBurst == 0 {
		c.Server.IngressBurst = defaults.Server.IngressBurst
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
}

// loadFromFile loads configuration from a YAML file. Booleans absent from the
// file keep their defaults.
func (c *Settings) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies environment overrides. Unparseable values are ignored.
func (c *Settings) loadFromEnv() {
	if val := os.Getenv("APIHUB_CATALOG"); val != "" {
		c.Catalog.Path = val
	}
	if val := os.Getenv("APIHUB_CATALOG_WATCH"); val != "" {
		c.Catalog.Watch = parseBool(val)
	}

	if val := os.Getenv("APIHUB_BACKEND"); val != "" {
		c.Backend.Type = strings.ToLower(val)
	}
	if val := os.Getenv("APIHUB_SQLITE_PATH"); val != "" {
		c.Backend.SQLite.Path = val
	}
	if val := os.Getenv("APIHUB_REDIS_ADDR"); val != "" {
		c.Backend.Redis.Addr = val
	}
	if val := os.Getenv("APIHUB_REDIS_PASSWORD"); val != "" {
		c.Backend.Redis.Password = val
	}
	if val := os.Getenv("APIHUB_REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			c.Backend.Redis.DB = db
		}
	}

	if val := os.Getenv("APIHUB_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Connector.Timeout = d
		}
	}
	if val := os.Getenv("APIHUB_RATE_LIMIT_ENABLED"); val != "" {
		c.Connector.RateLimitEnabled = parseBool(val)
	}
	if val := os.Getenv("APIHUB_OAUTH2_REFRESH"); val != "" {
		c.Connector.OAuth2Refresh = parseBool(val)
	}

	if val := os.Getenv("APIHUB_LISTEN_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("APIHUB_INGRESS_RATE"); val != "" {
		if r, err := strconv.ParseFloat(val, 64); err == nil {
			c.Server.IngressRate = r
		}
	}
	if val := os.Getenv("APIHUB_INGRESS_BURST"); val != "" {
		if b, err := strconv.Atoi(val); err == nil {
			c.Server.IngressBurst = b
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = parseBool(val)
	}

	if val := os.Getenv("APIHUB_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
}

// Validate checks that the configuration is valid.
func (c *Settings) Validate() error {
	var errs []string

	if c.Catalog.Path == "" {
		errs = append(errs, "catalog.path is required")
	}

	switch c.Backend.Type {
	case BackendMemory:
	case BackendSQLite:
		if c.Backend.SQLite.Path == "" {
			errs = append(errs, "backend.sqlite.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Backend.Redis.Addr == "" {
			errs = append(errs, "backend.redis.addr is required for the redis backend")
		}
		if c.Backend.Redis.DB < 0 {
			errs = append(errs, fmt.Sprintf("backend.redis.db must be non-negative, got %d", c.Backend.Redis.DB))
		}
	default:
		errs = append(errs, fmt.Sprintf("backend.type must be one of [memory, sqlite, redis], got %q", c.Backend.Type))
	}

	if c.Connector.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("connector.timeout must be positive, got %v", c.Connector.Timeout))
	}

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}
	if c.Server.IngressRate < 0 {
		errs = append(errs, fmt.Sprintf("server.ingress_rate must be non-negative, got %v", c.Server.IngressRate))
	}
	if c.Server.IngressBurst < 1 {
		errs = append(errs, fmt.Sprintf("server.ingress_burst must be at least 1, got %d", c.Server.IngressBurst))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	switch c.Tracing.Exporter {
	case ExporterNone, ExporterConsole:
	case ExporterOTLP, ExporterOTLPHTTP:
		if c.Tracing.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("tracing.endpoint is required for the %s exporter", c.Tracing.Exporter))
		}
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [none, console, otlp, otlp-http], got %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func parseBool(val string) bool {
	val = strings.ToLower(strings.TrimSpace(val))
	return val == "1" || val == "true" || val == "yes"
}
