// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	// Server configures the HTTP front.
	Server ServerConfig `yaml:"server"`

	// Redis configures the event log store. An empty Addr selects the
	// in-memory log.
	Redis RedisConfig `yaml:"redis"`

	// Stream configures log retention and read behavior.
	Stream StreamConfig `yaml:"stream"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string `yaml:"addr"`

	// AgentName is reported on the agent card. Defaults to "bolt-events".
	AgentName string `yaml:"agent_name"`
}

// RedisConfig configures the Redis connection for the event log.
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Empty means in-memory.
	Addr string `yaml:"addr"`

	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StreamConfig configures the event log behavior.
type StreamConfig struct {
	// Prefix is the key prefix for per-task streams. Defaults to
	// "a2a:events".
	Prefix string `yaml:"prefix"`

	// MaxLen bounds each task's retained log. Trimming is approximate.
	// Defaults to 1000.
	MaxLen int64 `yaml:"max_len"`

	// PollTimeout bounds each blocking read. Defaults to 1s.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// Backoff is the fixed retry delay after transport failures.
	// Defaults to 1s.
	Backoff time.Duration `yaml:"backoff"`
}

// Load reads the configuration from a YAML file, applies environment
// overrides, fills defaults and validates. An empty path loads defaults
// and environment only.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides file values with BOLT_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("BOLT_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BOLT_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("BOLT_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("BOLT_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("BOLT_STREAM_PREFIX"); v != "" {
		c.Stream.Prefix = v
	}
	if v := os.Getenv("BOLT_STREAM_MAX_LEN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Stream.MaxLen = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.AgentName == "" {
		c.Server.AgentName = "bolt-events"
	}
	if c.Stream.Prefix == "" {
		c.Stream.Prefix = "a2a:events"
	}
	if c.Stream.MaxLen <= 0 {
		c.Stream.MaxLen = 1000
	}
	if c.Stream.PollTimeout <= 0 {
		c.Stream.PollTimeout = time.Second
	}
	if c.Stream.Backoff <= 0 {
		c.Stream.Backoff = time.Second
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}
	if c.Stream.MaxLen < 1 {
		return fmt.Errorf("stream max_len must be at least 1")
	}
	return nil
}
