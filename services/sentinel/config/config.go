// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the server configuration.
//
// Precedence, lowest to highest: documented defaults, the YAML file,
// SENTINEL_* environment variables. A missing default file is fine; a file
// that exists but does not parse or validate is an error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/limits"
)

// DefaultPath is the config file consulted when none is given.
const DefaultPath = "sentinel.yaml"

// maxConfigSize caps the config file read.
const maxConfigSize = 1 << 20

// Config is the full server configuration.
//
// Thread Safety: immutable after Load; safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Limits    LimitsConfig    `yaml:"limits"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`

	// Port is the listen port.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// RatePerSecond is the per-client request budget. Zero disables
	// rate limiting.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"min=0"`

	// RateBurst is the per-client burst allowance.
	RateBurst int `yaml:"rate_burst" validate:"min=0"`

	// ShutdownGraceSeconds bounds graceful shutdown.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" validate:"min=0"`
}

// AnalysisConfig configures ingestion.
type AnalysisConfig struct {
	// Root is the default project directory analyzed at startup. Empty
	// means no startup analysis; the API supplies roots per request.
	Root string `yaml:"root"`

	// Languages restricts analysis to the named languages. Empty means
	// every built-in language.
	Languages []string `yaml:"languages" validate:"dive,oneof=python javascript typescript"`

	// Workers caps the parse pool. Zero means one per CPU.
	Workers int `yaml:"workers" validate:"min=0"`

	// GitDiscovery prefers git-tracked enumeration over a walk.
	GitDiscovery bool `yaml:"git_discovery"`

	// Watch rebuilds the snapshot when files under Root change.
	Watch bool `yaml:"watch"`

	// DebounceMillis is the watcher quiet period.
	DebounceMillis int `yaml:"debounce_millis" validate:"min=0"`
}

// LimitsConfig mirrors the analysis resource bounds. Zero fields take the
// documented defaults.
type LimitsConfig struct {
	MaxHops     int `yaml:"max_hops" validate:"min=0"`
	MaxNodes    int `yaml:"max_nodes" validate:"min=0"`
	MaxFiles    int `yaml:"max_files" validate:"min=0"`
	MaxFindings int `yaml:"max_findings" validate:"min=0"`
	MaxDepth    int `yaml:"max_depth" validate:"min=0"`
}

// ToLimits converts the config form into the engine form.
func (c LimitsConfig) ToLimits() limits.Limits {
	return limits.Limits{
		MaxHops:     c.MaxHops,
		MaxNodes:    c.MaxNodes,
		MaxFiles:    c.MaxFiles,
		MaxFindings: c.MaxFindings,
		MaxDepth:    c.MaxDepth,
	}.Normalized()
}

// CatalogConfig configures the source/sink/sanitizer rulepack.
type CatalogConfig struct {
	// Path is a rulepack file. Empty means the embedded default pack.
	Path string `yaml:"path"`

	// URL is an HTTPS rulepack to refresh from. Empty disables refresh.
	URL string `yaml:"url" validate:"omitempty,url"`

	// RefreshMinutes is the remote refresh interval.
	RefreshMinutes int `yaml:"refresh_minutes" validate:"min=0"`
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	// Dir is the badger directory. Empty with InMemory false disables
	// persistence.
	Dir string `yaml:"dir"`

	// InMemory keeps snapshots in a memory-backed store.
	InMemory bool `yaml:"in_memory"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// TraceExporter selects the span exporter: "none" or "stdout".
	TraceExporter string `yaml:"trace_exporter" validate:"omitempty,oneof=none stdout"`

	// SampleRatio is the parent-based trace sampling ratio.
	SampleRatio float64 `yaml:"sample_ratio" validate:"min=0,max=1"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format selects the handler: auto picks text on a TTY, json
	// otherwise.
	Format string `yaml:"format" validate:"omitempty,oneof=auto json text"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:                 "127.0.0.1",
			Port:                 8080,
			RatePerSecond:        25,
			RateBurst:            50,
			ShutdownGraceSeconds: 10,
		},
		Analysis: AnalysisConfig{
			Workers:        0,
			DebounceMillis: 500,
		},
		Limits:  LimitsConfig{},
		Catalog: CatalogConfig{RefreshMinutes: 60},
		Store:   StoreConfig{InMemory: true},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load builds the effective configuration.
//
// Description:
//
//	Starts from Default, merges the YAML file, then applies SENTINEL_*
//	environment overrides, and validates the result. An empty path means
//	DefaultPath, and its absence is not an error; an explicit path must
//	exist.
//
// Outputs:
//
//	*Config - The validated effective configuration.
//	error - Non-nil for unreadable, unparseable or invalid configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) > maxConfigSize {
			return nil, fmt.Errorf("config: %s exceeds maximum size", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return nil, fmt.Errorf("config: invalid %s: failed %q rule", f.Namespace(), f.Tag())
		}
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyEnv overlays SENTINEL_* environment variables.
func applyEnv(cfg *Config) {
	cfg.Server.Host = envString("SENTINEL_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("SENTINEL_PORT", cfg.Server.Port)
	cfg.Server.RatePerSecond = envFloat("SENTINEL_RATE_PER_SECOND", cfg.Server.RatePerSecond)
	cfg.Server.RateBurst = envInt("SENTINEL_RATE_BURST", cfg.Server.RateBurst)

	cfg.Analysis.Root = envString("SENTINEL_ANALYSIS_ROOT", cfg.Analysis.Root)
	cfg.Analysis.Languages = envList("SENTINEL_LANGUAGES", cfg.Analysis.Languages)
	cfg.Analysis.Workers = envInt("SENTINEL_WORKERS", cfg.Analysis.Workers)
	cfg.Analysis.GitDiscovery = envBool("SENTINEL_GIT_DISCOVERY", cfg.Analysis.GitDiscovery)
	cfg.Analysis.Watch = envBool("SENTINEL_WATCH", cfg.Analysis.Watch)

	cfg.Limits.MaxHops = envInt("SENTINEL_MAX_HOPS", cfg.Limits.MaxHops)
	cfg.Limits.MaxNodes = envInt("SENTINEL_MAX_NODES", cfg.Limits.MaxNodes)
	cfg.Limits.MaxFiles = envInt("SENTINEL_MAX_FILES", cfg.Limits.MaxFiles)
	cfg.Limits.MaxFindings = envInt("SENTINEL_MAX_FINDINGS", cfg.Limits.MaxFindings)
	cfg.Limits.MaxDepth = envInt("SENTINEL_MAX_DEPTH", cfg.Limits.MaxDepth)

	cfg.Catalog.Path = envString("SENTINEL_CATALOG_PATH", cfg.Catalog.Path)
	cfg.Catalog.URL = envString("SENTINEL_CATALOG_URL", cfg.Catalog.URL)

	cfg.Store.Dir = envString("SENTINEL_STORE_DIR", cfg.Store.Dir)
	cfg.Store.InMemory = envBool("SENTINEL_STORE_IN_MEMORY", cfg.Store.InMemory)

	cfg.Telemetry.TraceExporter = envString("SENTINEL_TRACE_EXPORTER", cfg.Telemetry.TraceExporter)
	cfg.Telemetry.SampleRatio = envFloat("SENTINEL_SAMPLE_RATIO", cfg.Telemetry.SampleRatio)

	cfg.Logging.Level = envString("SENTINEL_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envString("SENTINEL_LOG_FORMAT", cfg.Logging.Format)
}

// envString reads a string environment variable with a default value.
func envString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// envFloat reads a float64 environment variable with a default value.
func envFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// envBool reads a boolean environment variable with a default value.
func envBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// envList reads a comma-separated environment variable with a default value.
func envList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var items []string
	for _, item := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultVal
	}
	return items
}

// NewLogger builds the process logger from the logging configuration.
//
// Description:
//
//	JSON output by default; text output when the format is "text" or when
//	"auto" detects an interactive terminal on stdout.
func (c LoggingConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}

	format := c.Format
	if format == "auto" || format == "" {
		fd := os.Stdout.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			format = "text"
		} else {
			format = "json"
		}
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// slogLevel maps the configured level name onto slog.
func (c LoggingConfig) slogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
