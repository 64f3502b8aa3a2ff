// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package config loads and validates server configuration from layered
// sources: built-in defaults, an optional YAML file, then environment
// variables, with later layers overriding earlier ones.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full server configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	World       WorldConfig       `koanf:"world"`
	Narrative   NarrativeConfig   `koanf:"narrative"`
	Bus         BusConfig         `koanf:"bus"`
	Persistence PersistenceConfig `koanf:"persistence"`
	Session     SessionConfig     `koanf:"session"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// RateLimitReqs caps HTTP requests per client IP per window;
	// 0 disables the limiter.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// WorldConfig covers the world state store.
type WorldConfig struct {
	// Model selects how world units map to clients: "shared" gives
	// every player of an experience the same document, "isolated"
	// gives each player their own instance.
	Model string `koanf:"model" validate:"oneof=shared isolated"`

	// TemplateDir holds the world template JSON files loaded at boot.
	TemplateDir string `koanf:"template_dir" validate:"required"`

	// ScopeRule selects the visibility rule: "adjacency" or "radius".
	ScopeRule   string  `koanf:"scope_rule" validate:"oneof=adjacency radius"`
	ScopeRadius float64 `koanf:"scope_radius" validate:"min=0"`

	// Operators lists user IDs allowed to issue administrative
	// commands.
	Operators []string `koanf:"operators"`

	// EvictionInterval and IdleTimeout drive unloading of unused
	// world units. Zero EvictionInterval disables eviction.
	EvictionInterval time.Duration `koanf:"eviction_interval"`
	IdleTimeout      time.Duration `koanf:"idle_timeout"`
}

// NarrativeConfig covers the external narrative interpreter.
type NarrativeConfig struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is the interpreter's HTTP URL. Required when enabled.
	Endpoint string `koanf:"endpoint" validate:"omitempty,url"`

	// Timeout is the hard deadline on a single interpretation.
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// MaxRetries bounds conflict-driven proposal recomputation.
	MaxRetries int `koanf:"max_retries" validate:"min=0,max=10"`
}

// BusConfig covers event fan-out.
type BusConfig struct {
	// Driver selects the transport: "inprocess" for single-node
	// deployments, "nats" for multi-node.
	Driver string `koanf:"driver" validate:"oneof=inprocess nats"`

	// Buffer is the per-subscriber channel depth for the in-process
	// driver.
	Buffer int `koanf:"buffer" validate:"min=1"`

	NATSURL      string `koanf:"nats_url"`
	NATSEmbedded bool   `koanf:"nats_embedded"`
	NATSStoreDir string `koanf:"nats_store_dir"`

	// ReplayCapacity is the retained events per world unit for
	// reconnect catch-up.
	ReplayCapacity int `koanf:"replay_capacity" validate:"min=1"`
}

// PersistenceConfig covers document storage.
type PersistenceConfig struct {
	// Path is the Badger database directory. Empty runs in-memory,
	// which loses world state on restart.
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// SessionConfig covers client connections.
type SessionConfig struct {
	// SendQueue is the per-session outbound buffer. Overflow drops
	// the oldest update and flags the session for resync.
	SendQueue int `koanf:"send_queue" validate:"min=1"`

	// MaxMessageSize bounds inbound frames in bytes.
	MaxMessageSize int64 `koanf:"max_message_size" validate:"min=256"`

	WriteTimeout time.Duration `koanf:"write_timeout" validate:"min=1s"`
	PongTimeout  time.Duration `koanf:"pong_timeout" validate:"min=1s"`

	// CommandsPerSecond rate-limits a single session's commands;
	// Burst allows short spikes.
	CommandsPerSecond float64 `koanf:"commands_per_second" validate:"min=0"`
	Burst             int     `koanf:"burst" validate:"min=0"`
}

// LoggingConfig covers structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8471,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		World: WorldConfig{
			Model:            "shared",
			TemplateDir:      "/data/worlds",
			ScopeRule:        "adjacency",
			ScopeRadius:      0,
			EvictionInterval: 5 * time.Minute,
			IdleTimeout:      30 * time.Minute,
		},
		Narrative: NarrativeConfig{
			Enabled:    false,
			Timeout:    15 * time.Second,
			MaxRetries: 3,
		},
		Bus: BusConfig{
			Driver:         "inprocess",
			Buffer:         256,
			NATSURL:        "nats://127.0.0.1:4222",
			NATSEmbedded:   false,
			NATSStoreDir:   "/data/nats/jetstream",
			ReplayCapacity: 128,
		},
		Persistence: PersistenceConfig{
			Path:       "/data/worlds.db",
			SyncWrites: true,
		},
		Session: SessionConfig{
			SendQueue:         64,
			MaxMessageSize:    64 * 1024,
			WriteTimeout:      10 * time.Second,
			PongTimeout:       60 * time.Second,
			CommandsPerSecond: 10,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.World.ScopeRule == "radius" && c.World.ScopeRadius <= 0 {
		return fmt.Errorf("world.scope_radius must be positive when world.scope_rule=radius")
	}
	if c.Narrative.Enabled && c.Narrative.Endpoint == "" {
		return fmt.Errorf("narrative.endpoint is required when narrative.enabled=true")
	}
	if c.World.EvictionInterval > 0 && c.World.IdleTimeout <= 0 {
		return fmt.Errorf("world.idle_timeout must be positive when eviction is enabled")
	}
	return nil
}

// Addr returns the listener address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
