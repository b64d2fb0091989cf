// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads voltcord service configuration with the priority
// env > file > defaults. The file may be YAML or JSON; all environment
// variables use the VOLTCORD_ prefix.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all voltcord service configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Server contains HTTP listener settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// Store contains persistence settings.
	Store StoreConfig `json:"store" yaml:"store"`

	// Device contains outbound device API client settings.
	Device DeviceConfig `json:"device" yaml:"device"`

	// Scheduler contains reminder scheduler settings.
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`

	// Audit contains audit log retention settings.
	Audit AuditConfig `json:"audit" yaml:"audit"`

	// Credential contains credential store settings.
	Credential CredentialConfig `json:"credential" yaml:"credential"`

	// Log contains logging settings.
	Log LogConfig `json:"log" yaml:"log"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8780".
	Addr string `json:"addr" yaml:"addr"`

	// AuthToken guards all API routes except /healthz and /metrics.
	// Empty disables auth (development only).
	AuthToken string `json:"auth_token" yaml:"auth_token"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig contains persistence settings.
type StoreConfig struct {
	// Dir is the BadgerDB data directory. Empty selects in-memory mode.
	Dir string `json:"dir" yaml:"dir"`

	// GCInterval is how often the value log garbage collector runs.
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval"`
}

// DeviceConfig contains outbound device API client settings.
type DeviceConfig struct {
	// BaseURL is the default device API endpoint. Per-principal overrides
	// take precedence.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// RequestTimeout bounds a single device API call.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// RatePerSecond is the sustained outbound request rate.
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`

	// Burst is the token bucket burst size.
	Burst int `json:"burst" yaml:"burst"`

	// MaxInFlight caps concurrent outbound requests.
	MaxInFlight int64 `json:"max_in_flight" yaml:"max_in_flight"`

	// MaxQueued caps requests waiting for rate capacity. Requests beyond
	// the cap fail fast instead of queueing.
	MaxQueued int64 `json:"max_queued" yaml:"max_queued"`

	// MaxRetries is the retry count for transient upstream failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SchedulerConfig contains reminder scheduler settings.
type SchedulerConfig struct {
	// TickInterval is how often due reminders are scanned.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// MaxBatch caps reminders dispatched per tick.
	MaxBatch int `json:"max_batch" yaml:"max_batch"`

	// DispatchTimeout bounds a single reminder dispatch, independent of
	// the tick interval.
	DispatchTimeout time.Duration `json:"dispatch_timeout" yaml:"dispatch_timeout"`
}

// AuditConfig contains audit retention settings.
type AuditConfig struct {
	// Retention is how long audit entries are kept. Zero disables pruning.
	Retention time.Duration `json:"retention" yaml:"retention"`

	// PruneInterval is how often expired entries are removed.
	PruneInterval time.Duration `json:"prune_interval" yaml:"prune_interval"`
}

// CredentialConfig contains credential store settings.
type CredentialConfig struct {
	// IdentityPath is the path to the age identity file used to decrypt
	// stored device API tokens.
	IdentityPath string `json:"identity_path" yaml:"identity_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	Dir   string `json:"dir" yaml:"dir"`
	JSON  bool   `json:"json" yaml:"json"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8780",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Dir:        "",
			GCInterval: 10 * time.Minute,
		},
		Device: DeviceConfig{
			BaseURL:        "https://api.openshock.app",
			RequestTimeout: 10 * time.Second,
			RatePerSecond:  5,
			Burst:          5,
			MaxInFlight:    8,
			MaxQueued:      32,
			MaxRetries:     2,
		},
		Scheduler: SchedulerConfig{
			TickInterval:    15 * time.Second,
			MaxBatch:        32,
			DispatchTimeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Retention:     90 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or validation fails.
func Load(configPath string) (Config, error) {
	config := Default()

	if configPath != "" {
		if err := loadFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Device.RatePerSecond <= 0 {
		return fmt.Errorf("device.rate_per_second must be positive, got %v", c.Device.RatePerSecond)
	}
	if c.Device.Burst <= 0 {
		return fmt.Errorf("device.burst must be positive, got %d", c.Device.Burst)
	}
	if c.Device.MaxInFlight <= 0 {
		return fmt.Errorf("device.max_in_flight must be positive, got %d", c.Device.MaxInFlight)
	}
	if c.Device.MaxQueued < 0 {
		return fmt.Errorf("device.max_queued must not be negative, got %d", c.Device.MaxQueued)
	}
	if c.Device.RequestTimeout <= 0 {
		return fmt.Errorf("device.request_timeout must be positive, got %v", c.Device.RequestTimeout)
	}
	if c.Device.MaxRetries < 0 {
		return fmt.Errorf("device.max_retries must not be negative, got %d", c.Device.MaxRetries)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive, got %v", c.Scheduler.TickInterval)
	}
	if c.Scheduler.MaxBatch <= 0 {
		return fmt.Errorf("scheduler.max_batch must be positive, got %d", c.Scheduler.MaxBatch)
	}
	if c.Scheduler.DispatchTimeout <= 0 {
		return fmt.Errorf("scheduler.dispatch_timeout must be positive, got %v", c.Scheduler.DispatchTimeout)
	}
	if c.Audit.Retention < 0 {
		return fmt.Errorf("audit.retention must not be negative, got %v", c.Audit.Retention)
	}
	if c.Audit.Retention > 0 && c.Audit.PruneInterval <= 0 {
		return fmt.Errorf("audit.prune_interval must be positive when retention is set")
	}
	return nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}

	return nil
}

func loadEnv(config *Config) {
	// Server
	if v := os.Getenv("VOLTCORD_ADDR"); v != "" {
		config.Server.Addr = v
	}
	if v := os.Getenv("VOLTCORD_AUTH_TOKEN"); v != "" {
		config.Server.AuthToken = v
	}
	if v := os.Getenv("VOLTCORD_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ShutdownTimeout = d
		}
	}

	// Store
	if v := os.Getenv("VOLTCORD_STORE_DIR"); v != "" {
		config.Store.Dir = v
	}
	if v := os.Getenv("VOLTCORD_STORE_GC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Store.GCInterval = d
		}
	}

	// Device
	if v := os.Getenv("VOLTCORD_DEVICE_BASE_URL"); v != "" {
		config.Device.BaseURL = v
	}
	if v := os.Getenv("VOLTCORD_DEVICE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Device.RequestTimeout = d
		}
	}
	if v := os.Getenv("VOLTCORD_DEVICE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Device.RatePerSecond = f
		}
	}
	if v := os.Getenv("VOLTCORD_DEVICE_BURST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Device.Burst = i
		}
	}
	if v := os.Getenv("VOLTCORD_DEVICE_MAX_IN_FLIGHT"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Device.MaxInFlight = i
		}
	}
	if v := os.Getenv("VOLTCORD_DEVICE_MAX_QUEUED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Device.MaxQueued = i
		}
	}
	if v := os.Getenv("VOLTCORD_DEVICE_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Device.MaxRetries = i
		}
	}

	// Scheduler
	if v := os.Getenv("VOLTCORD_SCHEDULER_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Scheduler.TickInterval = d
		}
	}
	if v := os.Getenv("VOLTCORD_SCHEDULER_MAX_BATCH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Scheduler.MaxBatch = i
		}
	}
	if v := os.Getenv("VOLTCORD_SCHEDULER_DISPATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Scheduler.DispatchTimeout = d
		}
	}

	// Audit
	if v := os.Getenv("VOLTCORD_AUDIT_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Audit.Retention = d
		}
	}
	if v := os.Getenv("VOLTCORD_AUDIT_PRUNE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Audit.PruneInterval = d
		}
	}

	// Credential
	if v := os.Getenv("VOLTCORD_IDENTITY_PATH"); v != "" {
		config.Credential.IdentityPath = v
	}

	// Log
	if v := os.Getenv("VOLTCORD_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv("VOLTCORD_LOG_DIR"); v != "" {
		config.Log.Dir = v
	}
	if v := os.Getenv("VOLTCORD_LOG_JSON"); v != "" {
		config.Log.JSON = v == "true" || v == "1"
	}
}
