// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package config defines the TagCore configuration schema and its loader.
//
// Configuration is layered with Koanf v2, highest priority last:
// built-in defaults, then an optional YAML file, then environment
// variables prefixed with TAGCORE_ (TAGCORE_SERVER_PORT -> server.port).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the TagCore server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Tagging   TaggingConfig   `koanf:"tagging"`
	Trending  TrendingConfig  `koanf:"trending"`
	Reprocess ReprocessConfig `koanf:"reprocess"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file path. ":memory:" for tests.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// TaggingConfig controls token extraction and normalization.
type TaggingConfig struct {
	// Marker is the prefix character that introduces a tag token.
	Marker string `koanf:"marker"`

	// MinLength and MaxLength bound the token length after marker
	// stripping; tokens outside the range are rejected.
	MinLength int `koanf:"min_length"`
	MaxLength int `koanf:"max_length"`

	// EligibleStatuses are the content lifecycle statuses that get scanned.
	// A change notification with any other status reconciles against the
	// empty set, removing the item's associations.
	EligibleStatuses []string `koanf:"eligible_statuses"`
}

// TrendingConfig holds ranking tuning parameters. Half-life and window are
// operational knobs with no canonical value; they are deliberately
// configuration, not constants.
type TrendingConfig struct {
	// Window is the trailing window trending scores are computed over.
	Window time.Duration `koanf:"window"`

	// HalfLife is the decay half-life: an association this old contributes
	// half the weight of a fresh one.
	HalfLife time.Duration `koanf:"half_life"`

	// CacheTTL bounds ranking staleness.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// ReprocessConfig controls the batch reprocessor.
type ReprocessConfig struct {
	// RatePerSecond throttles reconcile writes during a batch run.
	// 0 disables throttling.
	RatePerSecond int `koanf:"rate_per_second"`
}

// SecurityConfig holds rate limiting and CORS settings.
type SecurityConfig struct {
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8470,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/tagcore.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Tagging: TaggingConfig{
			Marker:           "#",
			MinLength:        2,
			MaxLength:        50,
			EligibleStatuses: []string{"published", "draft"},
		},
		Trending: TrendingConfig{
			Window:       7 * 24 * time.Hour,
			HalfLife:     24 * time.Hour,
			CacheTTL:     5 * time.Minute,
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Reprocess: ReprocessConfig{
			RatePerSecond: 0, // Unthrottled
		},
		Security: SecurityConfig{
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for values that would misbehave at
// runtime. Called by Load after unmarshaling.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Tagging.Marker == "" {
		return fmt.Errorf("tagging.marker must not be empty")
	}
	if c.Tagging.MinLength < 1 {
		return fmt.Errorf("tagging.min_length must be at least 1, got %d", c.Tagging.MinLength)
	}
	if c.Tagging.MaxLength < c.Tagging.MinLength {
		return fmt.Errorf("tagging.max_length (%d) must be >= tagging.min_length (%d)",
			c.Tagging.MaxLength, c.Tagging.MinLength)
	}
	if len(c.Tagging.EligibleStatuses) == 0 {
		return fmt.Errorf("tagging.eligible_statuses must not be empty")
	}
	if c.Trending.Window <= 0 {
		return fmt.Errorf("trending.window must be positive, got %s", c.Trending.Window)
	}
	if c.Trending.HalfLife <= 0 {
		return fmt.Errorf("trending.half_life must be positive, got %s", c.Trending.HalfLife)
	}
	if c.Trending.CacheTTL <= 0 {
		return fmt.Errorf("trending.cache_ttl must be positive, got %s", c.Trending.CacheTTL)
	}
	if c.Trending.DefaultLimit < 1 || c.Trending.DefaultLimit > c.Trending.MaxLimit {
		return fmt.Errorf("trending.default_limit must be 1-%d, got %d",
			c.Trending.MaxLimit, c.Trending.DefaultLimit)
	}
	if c.Reprocess.RatePerSecond < 0 {
		return fmt.Errorf("reprocess.rate_per_second must not be negative, got %d",
			c.Reprocess.RatePerSecond)
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("security.rate_limit_reqs must be at least 1, got %d",
			c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("security.rate_limit_window must be positive, got %s",
			c.Security.RateLimitWindow)
	}
	return nil
}

// IsEligible reports whether a content status is in the extractable set.
func (c *TaggingConfig) IsEligible(status string) bool {
	for _, s := range c.EligibleStatuses {
		if s == status {
			return true
		}
	}
	return false
}
